package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/avi3tal/graphflow/internal/config"
	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

const defaultConfig = `
execution {
  max_retries     = 1
  max_concurrency = 2
  strategy        = "critical_path"
}

logging {
  level = "info"
}

resources {
  cpu_cores = 2
  memory_mb = 1024
}
`

var errFlaky = errors.New("flaky upstream")

func buildGraph() (*graph.Graph, error) {
	g := graph.NewGraph("number processor", graph.WithCondition("is_even", func(st state.State) bool {
		return state.Int(st, "value")%2 == 0
	}))

	attempts := 0
	nodes := []types.Node{
		agents.NewUpdateAgent("double", func(st state.State) error {
			return st.Set("value", state.Int(st, "value")*2)
		}, agents.WithExpectedDuration(10*time.Millisecond)),
		agents.NewUpdateAgent("add_one", func(st state.State) error {
			return st.Set("value", state.Int(st, "value")+1)
		}),
		agents.NewUpdateAgent("square", func(st state.State) error {
			time.Sleep(30 * time.Millisecond)
			return st.Set("square", state.Int(st, "value")*state.Int(st, "value"))
		}, agents.WithResources(1, 256), agents.WithExpectedDuration(30*time.Millisecond)),
		agents.NewUpdateAgent("cube", func(st state.State) error {
			attempts++
			if attempts == 1 {
				return errFlaky
			}
			v := state.Int(st, "value")
			return st.Set("cube", v*v*v)
		}, agents.WithRetry(2, 10*time.Millisecond), agents.WithTimeout(time.Second), agents.WithPriority(types.PriorityHigh)),
		agents.NewUpdateAgent("report", func(st state.State) error {
			return st.Set("report", fmt.Sprintf("value=%d square=%d cube=%d",
				state.Int(st, "value"), state.Int(st, "square"), state.Int(st, "cube")))
		}),
		// never reached; removed by Optimize
		agents.NewSimpleAgent("orphan", nil),
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	edges := []graph.Edge{
		graph.Conditional("double", "is_even", "add_one", ""),
		graph.Parallel("add_one", "square", "cube"),
		graph.Simple("square", "report"),
		graph.Simple("cube", "report"),
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntryPoint("double"); err != nil {
		return nil, err
	}
	return g, g.SetFinishPoint("report")
}

func loadConfig() (*config.Config, error) {
	if len(os.Args) > 1 {
		return config.Load(os.Args[1])
	}
	return config.Parse([]byte(defaultConfig), "default.hcl")
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := cfg.Logger("simple", os.Stderr)

	g, err := buildGraph()
	if err != nil {
		log.Fatalf("build graph: %v", err)
	}

	report, err := g.Optimize()
	if err != nil {
		log.Fatalf("optimize: %v", err)
	}
	fmt.Println("optimized away:", report.RemovedNodes)
	g.PrintGraph()

	metrics, _ := json.Marshal(g.CalculateMetrics())
	fmt.Println("metrics:", string(metrics))

	opts, closeFn, err := cfg.EngineOptions(logger)
	if err != nil {
		log.Fatalf("engine options: %v", err)
	}
	defer closeFn()

	e, err := engine.New(g, opts...)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	st := state.FromMap(map[string]any{"value": 3})
	res, err := e.Run(context.Background(), st)
	if err != nil {
		log.Fatalf("run failed with status %s: %v", res.Status, err)
	}

	fmt.Println("status:", res.Status)
	fmt.Println("path:", res.Context.ExecutionPath)
	fmt.Println("attempts:", res.Context.NodeAttempts)
	fmt.Println("result:", state.String(st, "report"))
}
