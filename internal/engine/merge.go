package engine

import (
	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/pkg/state"
)

// BranchState is what one parallel branch changed relative to the fork point
type BranchState struct {
	Target  string
	Changes state.Changes
}

// MergeFunc folds branch changes into the shared state at a join.
// Branches are passed in edge declaration order.
type MergeFunc func(dst state.State, branches []BranchState) error

// DeclarationOrderMerge applies branches one after another, so on a key
// written by several branches the one declared last wins. Nested objects
// are deep merged.
func DeclarationOrderMerge(dst state.State, branches []BranchState) error {
	for _, b := range branches {
		if err := state.Apply(dst, b.Changes); err != nil {
			return errors.Wrapf(err, "merge branch %s", b.Target)
		}
	}
	return nil
}
