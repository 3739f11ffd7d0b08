package workflow

import (
	"github.com/avi3tal/graphflow/pkg/types"
)

// Agent represents a node in the user-facing workflow DSL.
type Agent = types.Node
