package state

import (
	"reflect"
	"sort"

	"dario.cat/mergo"
	"github.com/pkg/errors"
)

// Changes is the set of keys a forked state wrote relative to its base.
type Changes struct {
	Updated map[string]any
	Deleted []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Diff computes what after changed relative to before.
func Diff(before, after State) Changes {
	base := before.ToMap()
	cur := after.ToMap()
	ch := Changes{Updated: make(map[string]any)}
	for k, v := range cur {
		old, ok := base[k]
		if !ok || !reflect.DeepEqual(old, v) {
			ch.Updated[k] = v
		}
	}
	for _, k := range before.Keys() {
		if _, ok := cur[k]; !ok {
			ch.Deleted = append(ch.Deleted, k)
		}
	}
	return ch
}

// Apply writes changes into dst. Nested objects present on both sides are
// deep merged with the incoming values winning; anything else is replaced.
func Apply(dst State, ch Changes) error {
	for _, k := range sortedKeys(ch.Updated) {
		v := ch.Updated[k]
		merged, err := mergeValue(dst, k, v)
		if err != nil {
			return errors.Wrapf(err, "merge key %q", k)
		}
		if err := dst.Set(k, merged); err != nil {
			return errors.Wrapf(err, "set key %q", k)
		}
	}
	for _, k := range ch.Deleted {
		dst.Delete(k)
	}
	return nil
}

// Restore replaces the content of dst with snapshot.
func Restore(dst State, snapshot map[string]any) error {
	for _, k := range dst.Keys() {
		if _, ok := snapshot[k]; !ok {
			dst.Delete(k)
		}
	}
	for _, k := range sortedKeys(snapshot) {
		if err := dst.Set(k, deepCopy(snapshot[k])); err != nil {
			return errors.Wrapf(err, "restore key %q", k)
		}
	}
	return nil
}

func mergeValue(dst State, key string, incoming any) (any, error) {
	src, ok := incoming.(map[string]any)
	if !ok {
		return incoming, nil
	}
	current, exists := dst.Get(key)
	if !exists {
		return deepCopy(src), nil
	}
	cur, ok := current.(map[string]any)
	if !ok {
		return deepCopy(src), nil
	}
	out := deepCopy(cur).(map[string]any)
	if err := mergo.Merge(&out, deepCopy(src).(map[string]any), mergo.WithOverride); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
