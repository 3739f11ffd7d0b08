package main

import (
	"context"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
	"github.com/avi3tal/graphflow/pkg/workflow"
)

func makeWriteAgent() workflow.Agent {
	return agents.NewUpdateAgent("Writer", func(st state.State) error {
		drafts := state.Int(st, "drafts") + 1
		content := "Draft"
		if drafts > 3 {
			content = "Official Content with more than 10 characters"
		}
		if err := st.Set("drafts", drafts); err != nil {
			return err
		}
		return st.Set("content", content)
	})
}

func makeReviewerAgent() workflow.Agent {
	return agents.NewUpdateAgent("Reviewer", func(st state.State) error {
		return st.Set("needs_review", len(state.String(st, "content")) < 10)
	})
}

func makePublishAgent() workflow.Agent {
	return agents.NewSimpleAgent("Publisher", func(_ context.Context, st state.State) (types.NodeOutput, error) {
		fmt.Printf("Publishing content %q, approved by %s\n", state.String(st, "content"), state.String(st, "approved_by"))
		return types.Completed(), nil
	})
}

func buildReviewWorkflow() (*workflow.Builder, error) {
	wf := workflow.NewBuilder("review-flow")

	writer := makeWriteAgent()
	err := wf.AddAgent(writer).
		AsEntryPoint().
		Then(makeReviewerAgent()).
		// Writer already exists, so a failed review loops back to it
		ThenIf("approved", func(st state.State) bool {
			needs, _ := st.Get("needs_review")
			return needs == false
		}, makePublishAgent(), writer).
		// a human signs off before anything is published
		InterruptBefore(interrupt.TypeApproval, true, 24*time.Hour, map[string]any{"queue": "editors"}).
		End()
	return wf, err
}

func main() {
	wf, err := buildReviewWorkflow()
	if err != nil {
		panic(fmt.Sprintf("Failed building workflow: %v", err))
	}
	app, err := workflow.NewApp(wf)
	if err != nil {
		panic(fmt.Sprintf("Failed creating app: %v", err))
	}

	res, err := app.Invoke(context.Background(), state.New())
	if err != nil {
		fmt.Println("Invoke failed:", err)
		return
	}
	fmt.Println("Status:", res.Status, "path:", res.Context.ExecutionPath)
	if res.Token == nil {
		return
	}

	// the editor approves
	res, err = app.Resume(context.Background(), *res.Token, state.FromMap(map[string]any{"approved_by": "editor"}))
	if err != nil {
		fmt.Println("Resume failed:", err)
		return
	}
	fmt.Println("Status:", res.Status, "path:", res.Context.ExecutionPath)
}
