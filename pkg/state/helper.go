package state

// deepCopy performs a deep copy of the JSON shaped values a state holds
func deepCopy(v any) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case map[string]any:
		newMap := make(map[string]any, len(val))
		for k, v := range val {
			newMap[k] = deepCopy(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = deepCopy(v)
		}
		return newSlice
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case map[string]string:
		newMap := make(map[string]string, len(val))
		for k, v := range val {
			newMap[k] = v
		}
		return newMap
	default:
		// scalars are immutable; other types are shared as is
		return val
	}
}
