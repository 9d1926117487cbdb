// Command trinitymemd is a terminal demo harness for the memory
// engine: an interactive REPL for ingesting synthetic observations,
// searching the tiered memory, running a consolidation pass, and
// driving the agent pipeline with stub collaborators. Structured after
// the teacher's cmd/quantumflow REPL (banner, slash commands, a
// scanner loop) but rebuilt around this domain's ingest/search/consolidate
// operations instead of LLM query routing.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/trinityvector/trinitymemory/internal/collab"
	"github.com/trinityvector/trinitymemory/internal/embedding"
	"github.com/trinityvector/trinitymemory/internal/memstore"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/pipeline"
	"github.com/trinityvector/trinitymemory/internal/telemetry"
)

const version = "0.1.0-alpha"

func main() {
	printBanner()

	if err := telemetry.InitLogger(telemetry.LogConfig{Level: "info", PrettyText: true}); err != nil {
		fmt.Printf("warning: logger init failed: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	cfg := models.DefaultConfig()
	if home, err := os.UserHomeDir(); err == nil {
		cfg.StoragePath = home + "/.trinitymemory"
	}

	mgr := memstore.New(cfg)
	if err := mgr.Load(); err != nil {
		fmt.Printf("⚠️  Warning: %v\n", err)
	}

	embedder := embedding.NewHashProvider(cfg.Index.Dimensions)

	coord := pipeline.New(mgr, embedder, demoCollaborators(), cfg)
	go reportStatus(coord)

	fmt.Printf("✓ Memory engine ready | storage: %s | dimensions: %d\n\n", cfg.StoragePath, cfg.Index.Dimensions)
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("trinitymemory> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		fields := strings.Fields(input)
		switch fields[0] {
		case "/help":
			printHelp()
		case "/observe":
			handleObserve(ctx, coord, fields[1:])
		case "/search":
			handleSearch(ctx, mgr, embedder, fields[1:])
		case "/consolidate":
			mgr.Consolidate()
			fmt.Println("✓ consolidation pass complete")
		case "/stats":
			printStats(mgr)
		case "/save":
			if err := mgr.Save(); err != nil {
				fmt.Printf("❌ save failed: %v\n", err)
			} else {
				fmt.Println("✓ saved")
			}
		case "/exit", "/quit":
			_ = coord.Stop(ctx)
			fmt.Println("Goodbye!")
			return
		default:
			fmt.Printf("unknown command %q, try /help\n", fields[0])
		}
	}
}

func handleObserve(ctx context.Context, coord *pipeline.Coordinator, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: /observe <label> [confidence]")
		return
	}
	confidence := 0.9
	if len(args) >= 2 {
		if v, err := strconv.ParseFloat(args[1], 64); err == nil {
			confidence = v
		}
	}
	obs := &models.Observation{
		Timestamp: time.Now(),
		DetectedObjects: []models.Detected{
			{ID: "demo", Label: args[0], Confidence: confidence},
		},
	}
	coord.Submit(ctx, obs)
	fmt.Printf("→ submitted observation %q (pending=%d)\n", args[0], coord.PendingLen())
}

func handleSearch(ctx context.Context, mgr *memstore.Manager, embedder embedding.Provider, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: /search <text> [k]")
		return
	}
	k := 5
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			k = v
		}
	}
	query, err := embedder.Generate(ctx, args[0])
	if err != nil {
		fmt.Printf("❌ embed failed: %v\n", err)
		return
	}
	results := mgr.Search(query, k, nil)
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, e := range results {
		fmt.Printf("%d. %s [%s] access=%d\n", i+1, e.ID, e.Tier, e.AccessCount)
	}
}

func printStats(mgr *memstore.Manager) {
	s := mgr.Stats()
	fmt.Printf("working=%d episodic=%d semantic=%d\n", s.Working, s.Episodic, s.Semantic)
}

func reportStatus(coord *pipeline.Coordinator) {
	for result := range coord.Status() {
		if result.Err != nil {
			fmt.Printf("\n⚠️  iteration failed: %v\ntrinitymemory> ", result.Err)
			continue
		}
		fmt.Printf("\n🔔 %s\ntrinitymemory> ", result.Delivery.Message)
	}
}

// demoCollaborators builds pass-through stand-ins for the external
// perception/context/navigation/communication agents, sufficient to
// exercise the coordinator's fan-out and sequencing without a real
// sensor stack.
func demoCollaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Perception:    demoPerception{},
		Context:       demoContext{},
		Navigation:    demoNavigation{},
		Communication: demoCommunication{},
	}
}

type demoPerception struct{}

func (demoPerception) Perceive(ctx context.Context, frame []byte) (collab.PerceptionOutput, error) {
	return collab.PerceptionOutput{}, nil
}

type demoContext struct{}

func (demoContext) AssembleContext(ctx context.Context, obs *models.Observation, results []*models.Entry) (collab.ContextOutput, error) {
	return collab.ContextOutput{Summary: fmt.Sprintf("%d related entries", len(results))}, nil
}

type demoNavigation struct{}

func (demoNavigation) Navigate(ctx context.Context, spatial *models.SpatialData, detections []models.Detected, heading models.Orientation) (collab.NavigationOutput, error) {
	return collab.NavigationOutput{Safety: collab.SafetyNone, Message: "clear"}, nil
}

type demoCommunication struct{}

func (demoCommunication) Communicate(ctx context.Context, p collab.PerceptionOutput, n collab.NavigationOutput, c collab.ContextOutput, priority collab.Priority) (collab.DeliveryPayload, error) {
	return collab.DeliveryPayload{Message: fmt.Sprintf("observation processed (%s, priority=%s)", c.Summary, priority), Priority: priority}, nil
}

func printHelp() {
	fmt.Println("Commands: /observe <label> [confidence]  /search <text> [k]  /consolidate  /stats  /save  /exit")
	fmt.Println()
}

func printBanner() {
	fmt.Printf(`
╔═════════════════════════════════════════════════════════╗
║        TrinityMemory Engine Demo %s                  ║
╚═════════════════════════════════════════════════════════╝

`, version)
}
