package main

import (
	"context"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
	"github.com/avi3tal/graphflow/pkg/workflow"
)

// Agents
func makeGetEmailAgent() workflow.Agent {
	return agents.NewUpdateAgent("GetEmail", func(st state.State) error {
		// Simulate retrieving an email from user or database
		time.Sleep(50 * time.Millisecond)
		return st.Set("email", "alice@example.com")
	}, agents.WithExpectedDuration(50*time.Millisecond))
}

func makeGetAddressAgent() workflow.Agent {
	return agents.NewUpdateAgent("GetAddress", func(st state.State) error {
		// Simulate retrieving a shipping address
		time.Sleep(20 * time.Millisecond)
		return st.Set("address", "1234 Main St.")
	}, agents.WithExpectedDuration(20*time.Millisecond))
}

func makeFinalAgent() workflow.Agent {
	return agents.NewSimpleAgent("DoSomething", func(_ context.Context, st state.State) (types.NodeOutput, error) {
		fmt.Println("Final Agent: got Email =", state.String(st, "email"), "and Address =", state.String(st, "address"))
		return types.Completed(), nil
	})
}

func main() {
	// Build the workflow
	wf := workflow.NewBuilder("Parallel-Join-Demo")

	err := wf.AddAgent(agents.NewSimpleAgent("Start", nil)).
		AsEntryPoint().
		// ThenAll => run GetEmail and GetAddress in parallel, each on its own copy of the state
		ThenAll(makeGetEmailAgent(), makeGetAddressAgent()).
		// Join => runs once both branches finished and their changes were merged
		Join(makeFinalAgent()).
		End()
	if err != nil {
		panic(fmt.Sprintf("Failed building flow: %v", err))
	}
	wf.Graph().PrintGraph()

	cfg := types.DefaultExecutionConfig()
	cfg.Strategy = "shortest_job_first"
	app, err := workflow.NewApp(wf, workflow.WithConfig(cfg))
	if err != nil {
		panic(fmt.Sprintf("Failed creating app: %v", err))
	}

	st := state.New()
	res, err := app.Invoke(context.Background(), st)
	if err != nil {
		fmt.Println("Invoke error:", err)
		return
	}
	fmt.Println("Workflow done. Path:", res.Context.ExecutionPath, "Final state:", st.ToMap())
}
