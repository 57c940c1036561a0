package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/browser"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/config"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/core"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/log"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/output"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/pipeline"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider/mal"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider/simkl"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider/tmdb"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider/tvdb"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/tui"
)

// metadataCacheTTL keeps repeat lookups of the same title out of the
// providers for the duration of a run and a bit beyond.
const metadataCacheTTL = 24 * time.Hour

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Scrape the watch history and write the CSV",
	RunE:  runExportCommand,
}

var (
	outputPath  string
	manualLogin bool
	noTUI       bool
	headless    bool
	workerCount int
)

func registerExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output CSV path (default from config)")
	cmd.Flags().BoolVar(&manualLogin, "manual-login", false, "Sign in yourself in the browser window instead of automated login")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text progress instead of the interactive display")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless (automated login only)")
	cmd.Flags().IntVar(&workerCount, "workers", 0, "Concurrent resolution workers (default from config)")
}

func init() {
	registerExportFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)

	// Running the bare command exports, so the export flags also live on
	// the root.
	registerExportFlags(rootCmd)
	rootCmd.RunE = runExportCommand
}

func runExportCommand(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	applyExportFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Initialize(cfg.EnableLogging, cfg.LogRetentionDays)
	if err := log.StartSession("export", args); err != nil {
		return err
	}
	defer func() {
		if err := log.EndSession(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save session log: %v\n", err)
		}
	}()
	log.SetOutputPath(cfg.Output.Path)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	engine, err := core.NewResolutionEngine(core.EngineConfig{
		Registry:    registry,
		Priority:    provider.PriorityOrder(cfg.EnabledServices()),
		WorkerCount: cfg.WorkerCount,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	session := browser.NewSession(browser.Config{
		Headless:           cfg.Scraper.Headless,
		UserAgent:          cfg.Scraper.UserAgent,
		HistoryURL:         cfg.Scraper.HistoryURL,
		NavTimeout:         time.Duration(cfg.Scraper.NavTimeoutSecs) * time.Second,
		ManualLoginTimeout: time.Duration(cfg.Scraper.ManualLoginSecs) * time.Second,
	})
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Shutdown()

	if err := session.Login(ctx, loginMethod(cfg)); err != nil {
		log.LogLogin(loginDetail(cfg), false, err)
		return err
	}
	log.LogLogin(loginDetail(cfg), true, nil)

	sink, err := output.CreateCSVFile(cfg.Output.Path)
	if err != nil {
		return err
	}
	defer sink.Close()

	p := &pipeline.Pipeline{
		Source: session,
		Engine: engine,
		Sink:   sink,
	}

	runErr := make(chan error, 1)
	statsCh := make(chan pipeline.Stats, 1)
	go func() {
		stats, err := p.Run(ctx)
		statsCh <- stats
		runErr <- err
	}()

	var summary core.Summary
	var tuiErr error
	if noTUI {
		summary = plainProgress(ctx, engine)
	} else {
		summary, tuiErr = tui.Run(engine.Events(), p.Scraped, cancel)
		if tuiErr != nil {
			cancel()
		}
	}

	stats := <-statsCh
	if err := <-runErr; err != nil && !summary.Canceled {
		return err
	}
	if tuiErr != nil {
		return tuiErr
	}

	fmt.Print(tui.RenderFinalReport(summary, stats.Exported, cfg.Output.Path))
	return nil
}

// applyExportFlags lets command-line flags override the config file.
func applyExportFlags(cmd *cobra.Command, cfg *config.Config) {
	if outputPath != "" {
		cfg.Output.Path = outputPath
	}
	if manualLogin {
		cfg.Scraper.ManualLogin = true
	}
	if cmd.Flags().Changed("headless") {
		cfg.Scraper.Headless = headless
	}
	if workerCount > 0 {
		cfg.WorkerCount = workerCount
	}
}

// buildRegistry registers one client per enabled provider, each behind its
// configured rate limit and a shared lookup cache.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	register := func(p provider.Provider) error {
		svc := p.Service()
		if err := registry.Register(provider.WithCache(p, metadataCacheTTL), cfg.RateLimitFor(svc)); err != nil {
			return err
		}
		return registry.Enable(svc)
	}

	if cfg.Providers.Simkl.Enabled {
		p := simkl.New(simkl.Config{
			ClientID:     cfg.Providers.Simkl.ClientID,
			ClientSecret: cfg.Providers.Simkl.ClientSecret,
		})
		if err := register(p); err != nil {
			return nil, err
		}
	}
	if cfg.Providers.TMDB.Enabled {
		if err := register(tmdb.New(tmdb.Config{APIKey: cfg.Providers.TMDB.APIKey})); err != nil {
			return nil, err
		}
	}
	if cfg.Providers.TVDB.Enabled {
		if err := register(tvdb.New(tvdb.Config{APIKey: cfg.Providers.TVDB.APIKey})); err != nil {
			return nil, err
		}
	}
	if cfg.Providers.MAL.Enabled {
		if err := register(mal.New(mal.Config{ClientID: cfg.Providers.MAL.ClientID})); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// loginMethod picks manual or automated login from the effective config.
func loginMethod(cfg *config.Config) browser.LoginMethod {
	if cfg.Scraper.ManualLogin {
		confirm := make(chan struct{})
		go func() {
			fmt.Println("Sign in to Prime Video in the browser window, then press Enter here.")
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(confirm)
		}()
		return browser.ManualLogin{Confirm: confirm}
	}
	return browser.AutomatedLogin{
		Email:    cfg.Amazon.Email,
		Password: cfg.Amazon.Password,
	}
}

func loginDetail(cfg *config.Config) string {
	if cfg.Scraper.ManualLogin {
		return "manual"
	}
	return "automated"
}

// plainProgress consumes engine events without a TUI, printing a line per
// update until the run completes.
func plainProgress(ctx context.Context, engine *core.ResolutionEngine) core.Summary {
	for {
		select {
		case summary := <-engine.Events():
			if summary.Done {
				return summary
			}
			if summary.LastTitle != "" {
				fmt.Printf("resolved %d (matched %d, unmatched %d): %s\n",
					summary.Resolved, summary.Matched, summary.Unmatched, summary.LastTitle)
			}
		case <-ctx.Done():
			return engine.Snapshot()
		}
	}
}
