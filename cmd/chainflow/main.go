// Command chainflow runs the supply chain simulation: mines feed
// processors, plants, distribution and retail, with operator decisions
// answered over the HTTP API or automatically in -auto mode.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/chainflow/internal/agent"
	"github.com/talgya/chainflow/internal/api"
	"github.com/talgya/chainflow/internal/config"
	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/orchestrator"
	"github.com/talgya/chainflow/internal/persistence"
	"github.com/talgya/chainflow/internal/shipment"
)

func main() {
	var (
		configPath = flag.String("config", "", "chain config file (YAML); empty runs the built-in demo chain")
		dbPath     = flag.String("db", "data/chainflow.db", "SQLite journal path; empty disables persistence")
		seed       = flag.Int64("seed", 0, "override the config's random seed (0 = use config)")
		listen     = flag.Int("listen", 8080, "HTTP API port; 0 disables the API")
		auto       = flag.Bool("auto", false, "answer operator decisions automatically with schema defaults")
	)
	flag.Parse()

	handler := slog.Handler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	rng := entropy.NewSource(cfg.Seed)
	chain := orchestrator.New(time.Now(), &orchestrator.Routing{
		Processing:    cfg.Routes.Processing,
		Manufacturing: cfg.Routes.Manufacturing,
		Distribution:  cfg.Routes.Distribution,
		Retail:        cfg.Routes.Retail,
	}, rng)

	agents, err := buildChain(cfg, chain, rng)
	if err != nil {
		slog.Error("failed to build chain", "error", err)
		os.Exit(1)
	}

	var db *persistence.DB
	if *dbPath != "" {
		os.MkdirAll(filepath.Dir(*dbPath), 0755)
		db, err = persistence.Open(*dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SaveMeta("seed", strconv.FormatInt(cfg.Seed, 10))
		slog.Info("database opened", "path", *dbPath)
	}

	if *listen > 0 {
		adminKey := os.Getenv("CHAINFLOW_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("CHAINFLOW_ADMIN_KEY not set, operator POST endpoints will be disabled")
		}
		server := &api.Server{
			Chain:    chain,
			Port:     *listen,
			AdminKey: adminKey,
		}
		server.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", *listen)
	}

	if *auto {
		runAuto(chain, agents.mines)
	}

	save := func() {
		if db == nil {
			return
		}
		if err := db.SaveTraces(chain.Traces()); err != nil {
			slog.Error("trace save failed", "error", err)
		}
		if err := db.SaveDecisions(chain.DecisionLog()); err != nil {
			slog.Error("decision save failed", "error", err)
		}
		if err := db.SaveShipments(agents.shipmentHistory()); err != nil {
			slog.Error("shipment save failed", "error", err)
		}
		for _, p := range agents.processors {
			if err := db.SaveJobs(p.ID, p.Queue.History()); err != nil {
				slog.Error("job save failed", "agent", p.ID, "error", err)
			}
		}
		for _, m := range agents.manufacturers {
			if err := db.SaveJobs(m.ID, m.Queue.History()); err != nil {
				slog.Error("job save failed", "agent", m.ID, "error", err)
			}
		}
		if err := db.SaveMetrics(chain.Results().Metrics); err != nil {
			slog.Error("metrics save failed", "error", err)
		}
	}
	save()

	snap := chain.Snapshot()
	fmt.Printf("\nChain ready: %d agents, %d traces, %d pending decisions.\n",
		len(snap.Agents), snap.ActiveTraces, snap.PendingRequests)
	if results := chain.Results(); results.Metrics.TotalRevenue > 0 {
		m := results.Metrics
		fmt.Printf("Input ore: %s t   Units sold: %s\n",
			humanize.CommafWithDigits(m.InputOre, 1),
			humanize.CommafWithDigits(m.UnitsSold, 1))
		fmt.Printf("Revenue: %s   Costs: %s   Net: %s\n",
			humanize.CommafWithDigits(m.TotalRevenue, 2),
			humanize.CommafWithDigits(m.TotalCosts, 2),
			humanize.CommafWithDigits(m.NetProfit, 2))
	}

	if *listen > 0 {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		save()
	}
}

// chainAgents holds the built agents so the journal save can reach
// every stage's histories.
type chainAgents struct {
	mines         []*agent.Mining
	processors    []*agent.Processing
	manufacturers []*agent.Manufacturing
	distributors  []*agent.Distribution
}

// shipmentHistory gathers every completed shipment across the chain,
// including distribution orders, for one full-replace save.
func (a *chainAgents) shipmentHistory() []*shipment.Shipment {
	var all []*shipment.Shipment
	for _, m := range a.mines {
		all = append(all, m.Outbound.History()...)
	}
	for _, p := range a.processors {
		all = append(all, p.Outbound.History()...)
	}
	for _, m := range a.manufacturers {
		all = append(all, m.Outbound.History()...)
	}
	for _, d := range a.distributors {
		all = append(all, d.Outbound.History()...)
	}
	return all
}

// buildChain constructs and registers every agent the config names.
func buildChain(cfg *config.Config, chain *orchestrator.Orchestrator, rng *entropy.Source) (*chainAgents, error) {
	agents := &chainAgents{}
	for _, m := range cfg.Mines {
		mine := agent.NewMining(m.ID, m.Name, m.Capacity, m.Ores, m.ExtractionRate, rng)
		chain.RegisterMining(mine)
		agents.mines = append(agents.mines, mine)
	}

	for _, p := range cfg.Processors {
		book, err := cfg.RecipeBook(p.Recipes)
		if err != nil {
			return nil, err
		}
		proc := agent.NewProcessing(p.ID, p.Name, p.Capacity, p.Lines, book, rng)
		chain.RegisterProcessing(proc)
		agents.processors = append(agents.processors, proc)
	}

	for _, m := range cfg.Manufacturers {
		book, err := cfg.RecipeBook(m.Recipes)
		if err != nil {
			return nil, err
		}
		man := agent.NewManufacturing(m.ID, m.Name, m.Capacity, m.Lines, book, rng)
		chain.RegisterManufacturing(man)
		agents.manufacturers = append(agents.manufacturers, man)
	}

	for _, d := range cfg.Distributors {
		dist := agent.NewDistribution(d.ID, d.Name, d.Capacity, d.Zones, rng)
		chain.RegisterDistribution(dist)
		agents.distributors = append(agents.distributors, dist)
	}
	for _, r := range cfg.Retailers {
		chain.RegisterRetail(agent.NewRetail(r.ID, r.Name, r.Capacity, r.Channels, r.CustomerZones, rng))
	}
	return agents, nil
}

// runAuto injects one load per mine and answers every operator
// decision with its schema defaults until the chain drains.
func runAuto(chain *orchestrator.Orchestrator, mines []*agent.Mining) {
	for _, mine := range mines {
		for _, ore := range mine.OreTypes {
			t, err := chain.InjectRawMaterials(mine.ID, ore, 0)
			if err != nil {
				slog.Error("injection failed", "mine", mine.ID, "ore", ore, "error", err)
				continue
			}
			slog.Info("flow started", "mine", mine.ID, "ore", ore, "trace", t.ID)
		}
	}

	// Each resolved decision can park the next one downstream, so loop
	// until the queue drains. The bound guards against a routing cycle.
	for i := 0; i < 100; i++ {
		pending := chain.PendingRequests()
		if len(pending) == 0 {
			break
		}
		for _, req := range pending {
			if err := chain.ProcessRequest(req.ID, decision.Defaults(req.Schema)); err != nil {
				slog.Error("auto decision failed", "request", req.ID, "error", err)
			}
		}
	}
}
