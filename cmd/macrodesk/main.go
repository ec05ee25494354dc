// MacroDesk — markets dashboard around CFTC Commitments of Traders data.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"macrodesk/api"
	"macrodesk/internal/config"
	"macrodesk/internal/cot"
	"macrodesk/internal/dashboard"
	"macrodesk/internal/macro"
	"macrodesk/internal/news"
	"macrodesk/internal/prices"
	"macrodesk/internal/store"
	"macrodesk/internal/store/sqlite"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "macrodesk",
	Short: "MacroDesk — markets dashboard around CFTC COT positioning",
	Long: `MacroDesk is a terminal-born markets dashboard. Its core is the CFTC
Commitments of Traders pipeline: weekly speculative positioning for
gold and FX futures, merged across the annual history archive and the
latest-week snapshot, with explicit staleness labelling. Prices, macro
indicators, and news panels round out the view.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env vars win either way.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		api.Version = version
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cotCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if lc.Format != "json" {
		zc = zap.NewDevelopmentConfig()
		zc.Encoding = "console"
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MacroDesk %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Wiring helpers ---

func buildDeps() (api.Deps, store.Store, error) {
	var st store.Store = &store.NopStore{}
	if cfg.Store.Enabled {
		s, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return api.Deps{}, nil, fmt.Errorf("open store: %w", err)
		}
		st = s
	}

	pricesClient := prices.New(cfg.Prices.Tickers, secs(cfg.Prices.CacheTTL), logger.Named("prices"))
	macroClient := macro.New(cfg.Macro.FREDAPIKey, secs(cfg.Macro.CacheTTL), logger.Named("macro"))

	var newsSource dashboard.NewsSource = news.New(newsFeeds(cfg.News.Feeds), secs(cfg.News.CacheTTL), logger.Named("news"))
	if len(cfg.News.Keywords) > 0 {
		newsSource = &keywordNews{client: newsSource.(*news.Client), keywords: cfg.News.Keywords}
	}

	pipeline := cot.NewPipeline(nil, cot.Config{
		ReportType:    cot.ReportType(cfg.COT.ReportType),
		Instruments:   cotInstruments(cfg.COT.Instruments),
		Window:        cfg.COT.Window,
		ThresholdDays: cfg.COT.StalenessDays,
		CacheTTL:      secs(cfg.COT.CacheTTL),
	}, logger.Named("cot"))

	asm := dashboard.NewAssembler(
		pricesClient, pipeline, macroClient, newsSource,
		st, cfg.News.Limit, cfg.COT.StalenessDays, logger.Named("dashboard"))

	return api.Deps{
		Assembler: asm,
		COT:       pipeline,
		Prices:    pricesClient,
		Macro:     macroClient,
		News:      newsSource,
	}, st, nil
}

// keywordNews narrows a news client to headlines matching the configured
// keyword roster.
type keywordNews struct {
	client   *news.Client
	keywords []string
}

func (k *keywordNews) Latest(ctx context.Context, limit int) ([]news.Headline, error) {
	return k.client.Matching(ctx, k.keywords, limit)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newsFeeds(urls []string) []news.Feed {
	feeds := make([]news.Feed, 0, len(urls))
	for _, u := range urls {
		feeds = append(feeds, news.Feed{Name: u, URL: u})
	}
	return feeds
}

func cotInstruments(configured []config.InstrumentConfig) []cot.Instrument {
	instruments := make([]cot.Instrument, 0, len(configured))
	for _, ic := range configured {
		instruments = append(instruments, cot.Instrument{ID: ic.ID, Keywords: ic.Keywords})
	}
	return instruments
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, st, err := buildDeps()
		if err != nil {
			return err
		}
		defer st.Close()

		srv := api.NewServer(cfg, deps, logger.Named("api"))

		refresh, _ := cmd.Flags().GetDuration("refresh")
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go srv.RunRefresher(ctx, refresh)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		logger.Info("starting API server", zap.String("addr", addr))
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Duration("refresh", 10*time.Minute, "dashboard refresh and broadcast interval")
}

// --- COT Command ---

var cotCmd = &cobra.Command{
	Use:   "cot [instrument]",
	Short: "Run the COT pipeline and print positioning",
	Long: `Fetch the CFTC Commitments of Traders reports and print net
speculative positioning per tracked instrument. With an argument, only
that instrument is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, st, err := buildDeps()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		res, err := deps.COT.Run(ctx)
		if err != nil {
			return err
		}

		if res.HistoryErr != "" {
			fmt.Printf("⚠️  history: %s\n", res.HistoryErr)
		}
		if res.LatestErr != "" {
			fmt.Printf("⚠️  latest week: %s\n", res.LatestErr)
		}

		for _, pos := range res.Instruments {
			if len(args) == 1 && pos.InstrumentID != args[0] {
				continue
			}
			printPositioning(pos)
		}
		return nil
	},
}

func printPositioning(pos cot.Positioning) {
	if pos.Staleness == cot.StalenessUnavailable {
		fmt.Printf("%-8s UNAVAILABLE\n", pos.InstrumentID)
		return
	}
	fmt.Printf("%-8s net %+d as of %s (%s, %d days ago, %d obs)\n",
		pos.InstrumentID, pos.NetPosition, pos.ReportDate,
		pos.Staleness, pos.DaysSinceLastReport, len(pos.History))
}

// --- Snapshot Command ---

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Assemble one full dashboard snapshot and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, st, err := buildDeps()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		snap, err := deps.Assembler.Assemble(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}
