package main

import (
	"context"
	"fmt"

	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
	"github.com/avi3tal/graphflow/pkg/workflow"
)

func makeWriterAgent() workflow.Agent {
	return agents.NewUpdateAgent("Writer", func(st state.State) error {
		return st.Set("content", "A sufficiently long article")
	})
}

func makePublishAgent() workflow.Agent {
	return agents.NewSimpleAgent("Publisher", func(_ context.Context, st state.State) (types.NodeOutput, error) {
		approved, _ := st.Get("approved")
		if approved == true {
			fmt.Println("Publishing content:", state.String(st, "content"))
		} else {
			fmt.Println("Cannot publish unapproved content!")
		}
		return types.Completed(), nil
	})
}

// We'll build a small sub-flow that does 2 steps:
//
//	ValidateLength -> CheckApproval -> end
//	(Pretend it's some complex check or multi-step approval process)
func buildValidationSubWorkflow() *workflow.Builder {
	sw := workflow.NewBuilder("ValidationSubFlow")

	step1 := agents.NewUpdateAgent("ValidateLength", func(st state.State) error {
		return st.Set("valid", len(state.String(st, "content")) >= 10)
	})
	step2 := agents.NewUpdateAgent("CheckApproval", func(st state.State) error {
		valid, _ := st.Get("valid")
		return st.Set("approved", valid == true)
	})

	err := sw.AddAgent(step1).
		AsEntryPoint().
		Then(step2).
		End()
	if err != nil {
		panic(fmt.Sprintf("Subflow build error: %v", err))
	}
	return sw
}

func main() {
	validationSubFlow := buildValidationSubWorkflow()

	mainFlow := workflow.NewBuilder("MainFlowWithSub")
	err := mainFlow.AddAgent(makeWriterAgent()).
		AsEntryPoint().
		// ThenSubWorkflow -> treat the entire validation sub-flow as one "agent"
		ThenSubWorkflow(validationSubFlow).
		Then(makePublishAgent()).
		End()
	if err != nil {
		panic(fmt.Sprintf("Main flow build error: %v", err))
	}

	app, err := workflow.NewApp(mainFlow)
	if err != nil {
		panic(fmt.Sprintf("Failed to create app: %v", err))
	}

	st := state.New()
	res, err := app.Invoke(context.Background(), st)
	if err != nil {
		fmt.Println("Run error:", err)
		return
	}
	fmt.Printf("\nPath => %v\nFinal State => %v\n", res.Context.ExecutionPath, st.ToMap())
}
