package main

import (
	"context"
	"fmt"

	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
	"github.com/avi3tal/graphflow/pkg/workflow"
)

func makeCheckUserAgent() workflow.Agent {
	return agents.NewSimpleAgent("CheckUser", func(_ context.Context, st state.State) (types.NodeOutput, error) {
		fmt.Printf("Checking user %s with plan %q\n", state.String(st, "user"), state.String(st, "plan"))
		return types.Completed(), nil
	})
}

func makeMessageAgent(name, message string) workflow.Agent {
	return agents.NewUpdateAgent(name, func(st state.State) error {
		fmt.Printf("[%s] %s, %s\n", name, message, state.String(st, "user"))
		return st.Set("handled_by", name)
	})
}

func main() {
	wf := workflow.NewBuilder("plan-router")

	err := wf.AddAgent(makeCheckUserAgent()).
		AsEntryPoint().
		// OnCondition returns a branch key => we map them to agents
		OnCondition("plan", func(st state.State) string {
			return state.String(st, "plan")
		}, map[string]workflow.Agent{
			"free":       makeMessageAgent("UpgradeFree", "Consider upgrading"),
			"paid":       makeMessageAgent("PaidWelcome", "Thanks for subscribing"),
			"enterprise": makeMessageAgent("EnterpriseFlow", "Your account manager will call"),
		}).
		// every branch is a finish point
		End()
	if err != nil {
		panic(fmt.Sprintf("Error building flow: %v", err))
	}

	app, err := workflow.NewApp(wf)
	if err != nil {
		panic(fmt.Sprintf("Error creating app: %v", err))
	}

	for _, in := range []map[string]any{
		{"user": "Alice", "plan": "free"},
		{"user": "Bob", "plan": "paid"},
		{"user": "Eve", "plan": "enterprise"},
		// unknown plans have no route and fail as a dead end
		{"user": "X", "plan": "weird"},
	} {
		fmt.Printf("\n--- Invoking with %q plan ---\n", in["plan"])
		st := state.FromMap(in)
		if _, err := app.Invoke(context.Background(), st); err != nil {
			fmt.Println("Invoke error:", err)
			continue
		}
		fmt.Println("handled by:", state.String(st, "handled_by"))
	}
}
