package workflow

import (
	"errors"
	"fmt"

	"github.com/avi3tal/graphflow/internal/graph"
)

// ensureAgent ensures that the agent is added to the graph. A node already
// registered under the same id is reused.
func ensureAgent(wf *Builder, agent Agent) error {
	if agent == nil {
		return graph.NewGraphStructureError("add_node", "", graph.ErrInvalidNode)
	}
	err := wf.graph.AddNode(agent)
	if err != nil && !isDuplicateNodeError(err) {
		return fmt.Errorf("cannot ensure agent %q: %w", agent.ID(), err)
	}
	return nil
}

// isDuplicateNodeError is a small helper to detect "already exists" errors.
func isDuplicateNodeError(err error) bool {
	return errors.Is(err, graph.ErrDuplicateNode)
}
