package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/kjannette/stocksync/internal/api"
	"github.com/kjannette/stocksync/internal/batch"
	"github.com/kjannette/stocksync/internal/config"
	"github.com/kjannette/stocksync/internal/models"
	"github.com/kjannette/stocksync/internal/scheduler"
	"go.uber.org/zap"
)

// runSync performs one run-to-completion sync and prints the summary.
func runSync(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	push := fs.Bool("push", a.cfg.PushgatewayURL != "", "push run metrics to the Pushgateway")
	fs.Parse(args)

	if d := a.cfg.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	report, err := a.runner().Run(ctx)
	if report != nil {
		fmt.Println(report.Summary())
	}
	if *push && a.cfg.PushgatewayURL != "" {
		if perr := a.metrics.Push(context.Background(), a.cfg.PushgatewayURL, "stocksync_sync"); perr != nil {
			a.logger.Warn("metrics push failed", zap.Error(perr))
		}
	}
	return err
}

// runServe starts the REST API and the daily sync schedule until signalled.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	syncOnStart := fs.Bool("sync-on-start", false, "run a sync immediately")
	noSchedule := fs.Bool("no-schedule", false, "serve the API without the daily sync")
	fs.Parse(args)

	runner := a.runner()

	sched := scheduler.NewSyncScheduler(runner.Run, scheduler.SyncSchedulerConfig{
		At:         a.cfg.SyncScheduleAt,
		RunOnStart: *syncOnStart && !*noSchedule,
		RunTimeout: a.cfg.RunTimeout(),
		OnReport: func(r *models.SyncReport, err error) {
			if errors.Is(err, batch.ErrRunInProgress) {
				return
			}
			if r != nil {
				a.logger.Info("sync complete", zap.String("run_id", r.RunID), zap.Int("new_rows", r.NewRows))
			}
		},
	}, a.logger)

	srv := api.NewServer(api.Deps{
		DB:          a.store,
		Instruments: a.store,
		Series:      a.store,
		Sync:        runner,
		Trigger:     sched.RunNow,
		Metrics:     a.metrics.Handler(),
		Logger:      a.logger,
	}, api.Options{
		Port:       a.cfg.APIPort,
		APIKey:     a.cfg.APIKey,
		CORSOrigin: a.cfg.CORSAllowOrigin,
		Defaults:   a.analyticsParams(),
	})

	if !*noSchedule {
		if err := sched.Start(); err != nil {
			return err
		}
	} else {
		a.logger.Info("daily sync schedule disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info("all services started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("API server error", zap.Error(runErr))
	}
	a.logger.Info("shutting down gracefully")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("API shutdown error", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return runErr
}

// runSeed registers instruments from the YAML seed file.
func runSeed(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", a.cfg.InstrumentsFile, "instrument seed file")
	fs.Parse(args)

	instruments, err := config.LoadInstruments(*file)
	if err != nil {
		return err
	}
	n, err := a.store.SeedInstruments(ctx, instruments)
	if err != nil {
		return err
	}
	a.logger.Info("instruments seeded", zap.Int("inserted", n), zap.Int("in_file", len(instruments)))
	return nil
}

// runAnalyze writes <export-dir>/<symbol>_analytics.csv and, with -chart,
// a PNG next to it.
func runAnalyze(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	from, to := dateFlags(fs)
	chart := fs.Bool("chart", false, "also render a PNG price chart")
	p := a.analyticsParams()
	fs.IntVar(&p.SMAWindow, "sma", p.SMAWindow, "SMA window")
	fs.IntVar(&p.EMASpan, "ema", p.EMASpan, "EMA span")
	fs.IntVar(&p.VolatilityWindow, "vol", p.VolatilityWindow, "volatility window")
	fs.Float64Var(&p.AbruptThreshold, "threshold", p.AbruptThreshold, "abrupt change threshold")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stocksync analyze [flags] <symbol>")
	}
	symbol := fs.Arg(0)

	start, end, err := parseDates(*from, *to)
	if err != nil {
		return err
	}

	svc := analytics.NewService(a.store, a.logger)
	if lp, err := svc.CurrentPrice(ctx, symbol); err == nil && lp != nil {
		a.logger.Info("current price", zap.String("symbol", symbol), zap.Float64("close", lp.Close), zap.String("date", models.FormatDay(lp.TradeDate)))
	}

	rep, err := svc.Analyze(ctx, symbol, start, end, p)
	if err != nil {
		return err
	}
	for _, m := range rep.AbruptMoves {
		a.logger.Info("abrupt move", zap.String("date", models.FormatDay(m.Date)), zap.Float64("close", m.Close), zap.Float64("pct_change", m.PctChange))
	}
	a.logger.Info("buy signals", zap.Int("days_above_sma", len(rep.BuySignals)))

	path, err := a.exportFile(symbol + "_analytics.csv")
	if err != nil {
		return err
	}
	if err := writeFile(path, func(f *os.File) error { return analytics.WriteFrameCSV(f, rep.Frame) }); err != nil {
		return err
	}
	a.logger.Info("data exported", zap.String("file", path))

	if *chart {
		png, err := a.exportFile(symbol + "_chart.png")
		if err != nil {
			return err
		}
		if err := writeFile(png, func(f *os.File) error { return analytics.RenderPriceChart(f, rep.Frame) }); err != nil {
			return err
		}
		a.logger.Info("chart rendered", zap.String("file", png))
	}
	return nil
}

func runCorrelate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("correlate", flag.ExitOnError)
	out := fs.String("out", "", "output CSV (default <export-dir>/correlation.csv)")
	chart := fs.Bool("chart", false, "also render a PNG heatmap")
	fs.Parse(args)
	symbols := splitSymbols(fs.Args())
	if len(symbols) == 0 {
		return fmt.Errorf("usage: stocksync correlate [flags] <symbol>...")
	}

	m, err := analytics.NewService(a.store, a.logger).Correlation(ctx, symbols)
	if err != nil {
		return err
	}
	if m.Empty() {
		a.logger.Warn("no data for any requested instrument")
	}

	path, err := a.outputPath(*out, "correlation.csv")
	if err != nil {
		return err
	}
	if err := writeFile(path, func(f *os.File) error { return analytics.WriteMatrixCSV(f, m) }); err != nil {
		return err
	}
	a.logger.Info("correlation exported", zap.String("file", path), zap.Strings("instruments", m.Names))

	if *chart && !m.Empty() {
		png := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
		if err := writeFile(png, func(f *os.File) error { return analytics.RenderCorrelationChart(f, m) }); err != nil {
			return err
		}
		a.logger.Info("heatmap rendered", zap.String("file", png))
	}
	return nil
}

func runCompare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	from, to := dateFlags(fs)
	out := fs.String("out", "", "output CSV (default <export-dir>/comparison.csv)")
	fs.Parse(args)
	symbols := splitSymbols(fs.Args())
	if len(symbols) == 0 {
		return fmt.Errorf("usage: stocksync compare [flags] <symbol>...")
	}
	start, end, err := parseDates(*from, *to)
	if err != nil {
		return err
	}

	t, err := analytics.NewService(a.store, a.logger).Comparison(ctx, symbols, start, end)
	if err != nil {
		return err
	}

	path, err := a.outputPath(*out, "comparison.csv")
	if err != nil {
		return err
	}
	if err := writeFile(path, func(f *os.File) error { return analytics.WriteTableCSV(f, t) }); err != nil {
		return err
	}
	a.logger.Info("comparison exported", zap.String("file", path), zap.Int("rows", len(t.Dates)))
	return nil
}

// --- helpers ---

func (a *app) analyticsParams() analytics.Params {
	return analytics.Params{
		SMAWindow:        a.cfg.SMAWindow,
		EMASpan:          a.cfg.EMASpan,
		VolatilityWindow: a.cfg.VolatilityWindow,
		AbruptThreshold:  a.cfg.AbruptThreshold,
	}
}

func (a *app) exportFile(name string) (string, error) {
	if err := os.MkdirAll(a.cfg.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return filepath.Join(a.cfg.ExportDir, name), nil
}

func (a *app) outputPath(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return a.exportFile(name)
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func dateFlags(fs *flag.FlagSet) (from, to *string) {
	from = fs.String("from", "", "start date YYYY-MM-DD (inclusive)")
	to = fs.String("to", "", "end date YYYY-MM-DD (inclusive)")
	return from, to
}

func parseDates(from, to string) (start, end time.Time, err error) {
	if from != "" {
		if start, err = models.ParseDay(from); err != nil {
			return start, end, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if to != "" {
		if end, err = models.ParseDay(to); err != nil {
			return start, end, fmt.Errorf("invalid -to: %w", err)
		}
	}
	return start, end, nil
}

// splitSymbols accepts symbols as separate args or comma-separated.
func splitSymbols(args []string) []string {
	var out []string
	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
