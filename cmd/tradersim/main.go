// Command tradersim runs the tick-based trading economy simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gram12321/tradergame04-sub000/internal/api"
	"github.com/gram12321/tradergame04-sub000/internal/catalog"
	"github.com/gram12321/tradergame04-sub000/internal/engine"
	"github.com/gram12321/tradergame04-sub000/internal/entropy"
	"github.com/gram12321/tradergame04-sub000/internal/persistence"
	"github.com/gram12321/tradergame04-sub000/internal/worldgen"
)

var (
	flagConfig string
	flagDB     string
	flagSeed   int64
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "tradersim",
		Short: "Tick-based multi-company trading economy simulation",
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config", "catalog config directory")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "data/tradersim.db", "sqlite database path")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 42, "random seed (0 = non-deterministic)")

	rootCmd.AddCommand(seedCmd(), stepCmd(), runCmd(), serveCmd(), reportCmd(), snapshotCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seedCmd() *cobra.Command {
	var cities, countries, companies int
	var balance float64
	var genCities bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a fresh world and save it to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := worldgen.GenConfig{
				Seed:      flagSeed,
				Cities:    cities,
				Countries: countries,
				Companies: companies,
				Balance:   balance,
			}

			if genCities {
				generated := worldgen.GenerateCities(cfg)
				path := filepath.Join(flagConfig, "cities.yaml")
				if err := worldgen.WriteCitiesYAML(path, generated); err != nil {
					return fmt.Errorf("write cities: %w", err)
				}
				slog.Info("city directory generated", "path", path, "cities", len(generated))
			}

			cat, err := catalog.Load(flagConfig)
			if err != nil {
				return err
			}
			st, err := worldgen.StarterState(cat, cfg)
			if err != nil {
				return err
			}

			db, err := openDB(cat)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Reset(); err != nil {
				return err
			}
			if err := db.Save(st); err != nil {
				return err
			}
			slog.Info("world seeded",
				"companies", len(st.Companies),
				"facilities", len(st.Facilities),
				"cities", len(cat.Cities),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&cities, "cities", 6, "cities to generate (with --gen-cities)")
	cmd.Flags().IntVar(&countries, "countries", 2, "countries to spread cities across")
	cmd.Flags().IntVar(&companies, "companies", 3, "starter companies")
	cmd.Flags().Float64Var(&balance, "balance", 50000, "starting balance per company")
	cmd.Flags().BoolVar(&genCities, "gen-cities", false, "regenerate config cities.yaml from noise")
	return cmd
}

func stepCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance the simulation N ticks and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, db, err := loadSimulation()
			if err != nil {
				return err
			}
			defer db.Close()

			for i := 0; i < n; i++ {
				sim.AdvanceTick()
			}
			if err := db.Save(sim.ExportState()); err != nil {
				return err
			}
			slog.Info("stepped", "ticks", n, "tick", sim.Tick)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "ticks", "n", 1, "number of ticks to advance")
	return cmd
}

func runCmd() *cobra.Command {
	var interval time.Duration
	var speed float64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tick loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, db, err := loadSimulation()
			if err != nil {
				return err
			}
			defer db.Close()

			eng := engine.NewEngine(sim, db)
			eng.Interval = interval
			eng.SetSpeed(speed)
			waitForSignal(eng)
			eng.Run()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "base tick interval")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "tick speed multiplier")
	return cmd
}

func serveCmd() *cobra.Command {
	var interval time.Duration
	var speed float64
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tick loop and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, db, err := loadSimulation()
			if err != nil {
				return err
			}
			defer db.Close()

			eng := engine.NewEngine(sim, db)
			eng.Interval = interval
			eng.SetSpeed(speed)

			srv := &api.Server{
				Sim:      sim,
				Eng:      eng,
				Store:    db,
				Port:     port,
				AdminKey: os.Getenv("TRADERSIM_ADMIN_KEY"),
			}
			srv.Start()

			waitForSignal(eng)
			eng.Run()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "base tick interval")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "tick speed multiplier")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print company and market tables from the saved state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, db, err := loadSimulation()
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("Tick %d: %d companies, %d facilities\n\n",
				sim.Tick, len(sim.Companies), len(sim.Facilities))

			companies := tablewriter.NewTable(os.Stdout,
				tablewriter.WithHeader([]string{"Company", "Balance", "Facilities", "Wage/Tick"}),
			)
			for _, c := range sim.Companies {
				companies.Append([]string{
					c.Name,
					humanize.CommafWithDigits(c.Balance, 2),
					fmt.Sprintf("%d", len(c.Facilities)),
					humanize.CommafWithDigits(c.WageBill(), 2),
				})
			}
			companies.Render()

			fmt.Println("\nMarket offers:")
			offers := tablewriter.NewTable(os.Stdout,
				tablewriter.WithHeader([]string{"Resource", "Available", "In Stock", "Price"}),
			)
			for _, o := range sim.Market.Offers {
				offers.Append([]string{
					string(o.Resource),
					fmt.Sprintf("%.1f", o.AmountAvailable),
					fmt.Sprintf("%.1f", o.AmountInStock),
					fmt.Sprintf("%.2f", o.Price),
				})
			}
			offers.Render()

			fmt.Println("\nTrade routes:")
			routes := tablewriter.NewTable(os.Stdout,
				tablewriter.WithHeader([]string{"Resource", "Amount/Tick", "Price/Unit", "Internal", "Status"}),
			)
			for _, rt := range sim.Market.RoutesBySeq() {
				status := "ok"
				if rt.LastFailedTick != nil {
					status = fmt.Sprintf("failed @%d", *rt.LastFailedTick)
				}
				routes.Append([]string{
					string(rt.Resource),
					fmt.Sprintf("%.1f", rt.AmountPerTick),
					fmt.Sprintf("%.2f", rt.PricePerUnit),
					fmt.Sprintf("%v", rt.Internal),
					status,
				})
			}
			routes.Render()
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "snapshot [export|import]",
		Short: "Export or import a compressed state snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(flagConfig)
			if err != nil {
				return err
			}
			db, err := openDB(cat)
			if err != nil {
				return err
			}
			defer db.Close()

			switch args[0] {
			case "export":
				st, err := db.Load()
				if err != nil {
					return err
				}
				if err := persistence.WriteSnapshot(file, st); err != nil {
					return err
				}
				slog.Info("snapshot written", "path", file, "tick", st.Tick)
			case "import":
				st, err := persistence.ReadSnapshot(file, cat)
				if err != nil {
					return err
				}
				if err := db.Reset(); err != nil {
					return err
				}
				if err := db.Save(st); err != nil {
					return err
				}
				slog.Info("snapshot imported", "path", file, "tick", st.Tick)
			default:
				return fmt.Errorf("unknown snapshot mode %q", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "data/tradersim.snap.zst", "snapshot file path")
	return cmd
}

func openDB(cat *catalog.Catalog) (*persistence.DB, error) {
	if dir := filepath.Dir(flagDB); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	return persistence.Open(flagDB, cat)
}

func loadSimulation() (*engine.Simulation, *persistence.DB, error) {
	cat, err := catalog.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB(cat)
	if err != nil {
		return nil, nil, err
	}

	var src entropy.Source
	if flagSeed != 0 {
		src = entropy.NewSeeded(flagSeed)
	} else {
		src = entropy.NewCrypto()
	}

	if !db.HasState() {
		db.Close()
		return nil, nil, fmt.Errorf("no saved state in %s; run 'tradersim seed' first", flagDB)
	}
	st, err := db.Load()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	sim := engine.Restore(cat, st, src)
	slog.Info("state restored",
		"tick", sim.Tick,
		"companies", len(sim.Companies),
		"facilities", len(sim.Facilities),
	)
	return sim, db, nil
}

func waitForSignal(eng *engine.Engine) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		eng.Stop()
	}()
}
