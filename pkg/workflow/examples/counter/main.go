package main

import (
	"context"
	"fmt"

	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
	"github.com/avi3tal/graphflow/pkg/workflow"
)

// Flow Explanation:
//	1.	Incrementer keeps looping back to itself while value < 5. Each loop increments the value.
//	2.	Once value hits 5, we go to Printer, which prints value=5.
//	3.	Then we call .End(), ending the flow.

func makeLectureAgent() workflow.Agent {
	return agents.NewSimpleAgent("Lecturer", func(_ context.Context, _ state.State) (types.NodeOutput, error) {
		fmt.Println("Lecture: Welcome to the loop-while demo!")
		return types.Completed(), nil
	})
}

// Increments the value
func makeIncrementAgent(name string) workflow.Agent {
	return agents.NewUpdateAgent(name, func(st state.State) error {
		return st.Set("value", state.Int(st, "value")+1)
	})
}

// Prints the state
func makePrintAgent(name string) workflow.Agent {
	return agents.NewSimpleAgent(name, func(_ context.Context, st state.State) (types.NodeOutput, error) {
		fmt.Printf("[%s] Current Value: %d\n", name, state.Int(st, "value"))
		return types.Completed(), nil
	})
}

func main() {
	wf := workflow.NewBuilder("counter-demo")

	incrementer := makeIncrementAgent("Incrementer")
	err := wf.AddAgent(makeLectureAgent()).
		AsEntryPoint().
		Then(incrementer).
		// Incrementer already exists, so the true side is a jump back and the chain continues from Printer
		ThenIf("below_five", func(st state.State) bool { return state.Int(st, "value") < 5 },
			incrementer,
			makePrintAgent("Printer"),
		).
		End()
	if err != nil {
		panic(fmt.Sprintf("Failed building workflow: %v", err))
	}

	fmt.Println("cycles:", wf.Graph().DetectCycles())

	app, err := workflow.NewApp(wf)
	if err != nil {
		panic(fmt.Sprintf("Failed creating app: %v", err))
	}

	st := state.New()
	res, err := app.Invoke(context.Background(), st)
	if err != nil {
		fmt.Println("Invoke failed:", err)
		return
	}
	fmt.Printf("Final value=%d after %d steps\n", state.Int(st, "value"), res.Context.CurrentStep)
}
