package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/buffwatch/config"
	"github.com/aluiziolira/buffwatch/display"
	"github.com/aluiziolira/buffwatch/fetch"
	"github.com/aluiziolira/buffwatch/monitor"
	"github.com/aluiziolira/buffwatch/sampler"
)

func main() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	configDefault := "config.yaml"
	if value, ok := config.EnvString("BUFFWATCH_CONFIG"); ok {
		configDefault = value
	}
	metricsDefault := ""
	if value, ok := config.EnvString("BUFFWATCH_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	cycleDelayDefault := 0
	if value, ok, err := config.EnvInt("BUFFWATCH_CYCLE_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid BUFFWATCH_CYCLE_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		cycleDelayDefault = value
	}

	configPath := flag.String("config", configDefault, "Path to the YAML configuration file")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	cycleDelay := flag.Int("cycle-delay", cycleDelayDefault, "Seconds to pause after each full sweep (0 = config value)")
	soundCmd := flag.String("sound-cmd", "", "Command to play on alarm (default: terminal bell)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buffwatch: %v\n", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *cycleDelay > 0 {
		cfg.CycleDelay = time.Duration(*cycleDelay) * time.Second
	}
	if *soundCmd != "" {
		cfg.SoundCommand = *soundCmd
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger := newLogger(cfg.Verbose)
	slog.SetDefault(logger)

	slog.Info("starting watcher",
		slog.Int("items", len(cfg.Items)),
		slog.Duration("cycle_delay", cfg.CycleDelay),
		slog.Duration("fetch_timeout", cfg.FetchTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitor.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	fetcher := fetch.NewPageFetcher(fetch.Options{
		Timeout:   cfg.FetchTimeout,
		ReadyPoll: cfg.ReadyPoll,
		UserAgent: cfg.UserAgent,
	})
	defer fetcher.Close()

	smp, err := sampler.New(fetcher, 4*len(cfg.Items), metrics)
	if err != nil {
		slog.Error("initialising sampler", slog.Any("error", err))
		os.Exit(1)
	}

	renderer := display.NewConsoleRenderer(os.Stdout)
	var notifier monitor.Notifier = display.BellNotifier{Out: os.Stdout}
	if cfg.SoundCommand != "" {
		notifier = display.NewCommandNotifier(cfg.SoundCommand)
	}

	loop := monitor.New(cfg.Items, smp, renderer, notifier, monitor.Options{
		CycleDelay: cfg.CycleDelay,
		Metrics:    metrics,
	})

	err = loop.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", serr))
		}
		cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("watcher stopped")
}

func newLogger(verbose bool) *slog.Logger {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	// Logs go to stderr: the renderer owns stdout.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
