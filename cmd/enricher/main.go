// Command enricher runs library scans and AI enrichment without the HTTP
// server, e.g. from cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/ai"
	"github.com/bihua-university/melodex/internal/base"
	"github.com/bihua-university/melodex/internal/enrich"
	"github.com/bihua-university/melodex/internal/library"
	"github.com/bihua-university/melodex/internal/settings"
)

var (
	configPath string
	verbose    bool
	limit      int
	day        string
	dir        string
)

// env is what every subcommand works against.
type env struct {
	cfg   base.Configuration
	log   *zap.Logger
	store *library.Store
	svc   *enrich.Service
}

func setup() (*env, error) {
	cfg, err := base.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := base.NewLogger(verbose || cfg.Debug)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	store, err := library.Open(cfg.DBDriver, cfg.DSN, log.Named("library"))
	if err != nil {
		return nil, err
	}
	opts, key, err := settings.New(store, cfg.AIOptions(), cfg.AIKey).AIOptions()
	if err != nil {
		store.Close()
		return nil, err
	}
	client, err := ai.NewClient(opts, log.Named("ai"))
	if err != nil {
		store.Close()
		return nil, err
	}
	return &env{
		cfg:   cfg,
		log:   log,
		store: store,
		svc:   enrich.NewService(store, client, key, cfg.AITemperature, log.Named("enrich")),
	}, nil
}

func (e *env) close() {
	_ = e.log.Sync()
	e.store.Close()
}

// run wraps a subcommand body with setup and signal handling.
func run(fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return fn(ctx, e, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:           "enricher",
	Short:         "Scan the music library and fill in AI generated details",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Import every audio file under the library directory",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		root := dir
		if root == "" {
			root = e.cfg.LibraryDir
		}
		if root == "" {
			return errors.New("no library dir: pass --dir or set library.dir")
		}
		res, err := e.store.Scan(ctx, root)
		if err != nil {
			return err
		}
		return printJSON(res)
	}),
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [music-id...]",
	Short: "Enrich the given tracks, or every track still missing details",
	RunE: run(func(ctx context.Context, e *env, args []string) error {
		if len(args) == 0 {
			sweep, err := e.svc.EnrichPending(ctx, limit)
			if perr := printJSON(sweep); perr != nil {
				return perr
			}
			return err
		}
		for _, id := range args {
			start := time.Now()
			res, err := e.svc.Enrich(ctx, id)
			if err != nil {
				var aerr *ai.Error
				if errors.As(err, &aerr) {
					return fmt.Errorf("%s: %s", id, aerr.Message())
				}
				return fmt.Errorf("%s: %w", id, err)
			}
			e.log.Info("enriched", zap.String("music_id", id), zap.Duration("took", time.Since(start)))
			if err := printJSON(res); err != nil {
				return err
			}
		}
		return nil
	}),
}

var labelsCmd = &cobra.Command{
	Use:   "labels <music-id>",
	Short: "Print the stored labels of a track",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(_ context.Context, e *env, args []string) error {
		if _, err := e.store.GetMusic(args[0]); err != nil {
			return err
		}
		labels, err := e.store.Labels(args[0])
		if err != nil {
			return err
		}
		return printJSON(labels)
	}),
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Print the daily recommendation",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, e *env, _ []string) error {
		d := time.Now()
		if day != "" {
			t, err := time.ParseInLocation(library.DayLayout, day, time.Local)
			if err != nil {
				return fmt.Errorf("--day: %w", err)
			}
			d = t
		}
		rec, err := e.svc.DailyRecommendation(ctx, d)
		if err != nil {
			return err
		}
		return printJSON(rec)
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	scanCmd.Flags().StringVar(&dir, "dir", "", "library directory (default: library.dir)")
	enrichCmd.Flags().IntVar(&limit, "limit", 0, "max tracks per sweep, 0 for all")
	dailyCmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default: today)")

	rootCmd.AddCommand(scanCmd, enrichCmd, labelsCmd, dailyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
