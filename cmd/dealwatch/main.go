package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mjaros/dealwatch/internal/api"
	"github.com/mjaros/dealwatch/internal/clock"
	"github.com/mjaros/dealwatch/internal/config"
	"github.com/mjaros/dealwatch/internal/health"
	"github.com/mjaros/dealwatch/internal/notify"
	"github.com/mjaros/dealwatch/internal/rates"
	"github.com/mjaros/dealwatch/internal/scrape"
	"github.com/mjaros/dealwatch/internal/session"
	"github.com/mjaros/dealwatch/internal/store"
	"github.com/mjaros/dealwatch/internal/telemetry"
	"github.com/mjaros/dealwatch/internal/watcher"

	// Register store drivers so they are available via store.Open.
	_ "github.com/mjaros/dealwatch/internal/store/postgres"
	_ "github.com/mjaros/dealwatch/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to listing store", slog.String("driver", cfg.Database.Driver))

	// Without a session there is nothing to watch; bootstrap failure is fatal.
	bootstrapper := session.NewBootstrapper(cfg.Session, cfg.Site.BaseURL, logger)
	sess, err := bootstrapper.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrapping session: %w", err)
	}

	client := scrape.NewClient(cfg.Site.BaseURL, sess, logger, tp.TracerProvider)
	rateCache := rates.NewCache(cfg.Rates, clk, logger)

	var notifier watcher.Notifier
	if cfg.Notify.WebhookURL != "" {
		discord, err := notify.NewDiscord(cfg.Notify.WebhookURL, logger)
		if err != nil {
			return fmt.Errorf("creating discord notifier: %w", err)
		}
		notifier = discord
	} else {
		logger.InfoContext(ctx, "no webhook configured, chat notifications disabled")
	}

	var sounder watcher.Sounder
	if cfg.Notify.SoundFile != "" {
		sound, err := notify.NewSound(cfg.Notify.SoundFile, logger)
		if err != nil {
			return fmt.Errorf("loading alert sound: %w", err)
		}
		sounder = sound
	}

	processor := watcher.NewProcessor(
		repos.Listings, client, notifier, sounder,
		cfg.Watcher.MinPrice, cfg.Watcher.MinProfit, cfg.Watcher.SoundProfit,
		logger,
	)

	poller, err := watcher.NewPoller(
		cfg.Watcher, cfg.Session, client, rateCache, processor,
		&sessionRefresher{bootstrapper: bootstrapper, client: client},
		clk, logger, tp.Meter,
	)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}

	healthHandler := health.NewHandler(clk,
		health.Checker{Name: "store", Check: repos.Ping},
	)

	mux := http.NewServeMux()
	healthHandler.Routes(mux)
	api.NewHandler(repos.Listings, logger).Routes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "dealwatch is running", slog.String("version", version))

	runErr := poller.Run(ctx)
	if runErr != nil && runErr != context.Canceled {
		logger.Error("watch loop error", slog.Any("error", runErr))
	}

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// sessionRefresher re-runs the browser bootstrap and hands the fresh
// session to the scraping client.
type sessionRefresher struct {
	bootstrapper *session.Bootstrapper
	client       *scrape.Client
}

func (r *sessionRefresher) Refresh(ctx context.Context) error {
	sess, err := r.bootstrapper.Bootstrap(ctx)
	if err != nil {
		return err
	}
	r.client.SetSession(sess)
	return nil
}
