package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/avi3tal/graphflow/internal/config"
	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

func addMessage(st state.State, role, text string) error {
	var msgs []any
	if v, ok := st.Get("messages"); ok {
		msgs, _ = v.([]any)
	}
	return st.Set("messages", append(msgs, map[string]any{"role": role, "text": text}))
}

func printMessages(st state.State) {
	v, _ := st.Get("messages")
	msgs, _ := v.([]any)
	for _, m := range msgs {
		msg, _ := m.(map[string]any)
		fmt.Printf("\t%s: %s\n", msg["role"], msg["text"])
	}
}

// toolsAgent stops the run until a human approves the sensitive tool
func toolsAgent(_ context.Context, st state.State) (types.NodeOutput, error) {
	return types.Pending("Sensitive tool requires approval"), addMessage(st, "ai", "Sensitive tool requires approval")
}

func runTool(st state.State) error {
	if approved, _ := st.Get("approved"); approved != true {
		return addMessage(st, "ai", "sensitive tool was rejected")
	}
	return addMessage(st, "ai", "sensitive tool executed successfully")
}

func main() {
	logger := config.NewLogger("pending-agent", "info", config.FormatText, os.Stderr)

	g := graph.NewGraph("pending-agent")
	for _, n := range []types.Node{
		agents.NewUpdateAgent("StartNode", func(st state.State) error {
			return addMessage(st, "ai", "Hello, running actions")
		}),
		agents.NewSimpleAgent("toolsAgent", toolsAgent),
		agents.NewUpdateAgent("RunTool", runTool),
	} {
		if err := g.AddNode(n); err != nil {
			log.Fatal(err)
		}
	}
	must(g.AddEdge(graph.Simple("StartNode", "toolsAgent")))
	must(g.AddEdge(graph.Simple("toolsAgent", "RunTool")))
	must(g.SetEntryPoint("StartNode"))
	must(g.SetFinishPoint("RunTool"))
	g.PrintGraph()

	store, err := checkpoints.NewBadgerStore("", checkpoints.WithBadgerLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	cfg := types.DefaultExecutionConfig().WithTimeoutSeconds(30)
	cfg.EnableCheckpointing = true
	e, err := engine.New(g,
		engine.WithConfig(cfg),
		engine.WithCheckpointStore(store),
		engine.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}

	st := state.New()
	must(addMessage(st, "human", "Hello my name is Bowie"))

	// First run stops after toolsAgent reported pending; the resume continues at RunTool
	res, err := e.Run(context.Background(), st)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("status:", res.Status, "next:", res.Context.Next)
	printMessages(st)

	// Handle pending execution
	resume := state.FromMap(map[string]any{"approved": true})
	res, err = e.Resume(context.Background(), *res.Token, resume)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("status:", res.Status, "path:", res.Context.ExecutionPath)
	printMessages(resume)

	keys, err := store.List(context.Background(), g.ID())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("checkpoints:", keys)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
