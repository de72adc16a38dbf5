package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/logging"
	"github.com/BioHazard786/roommesh/internal/relay"
	"github.com/BioHazard786/roommesh/internal/server"
	"github.com/BioHazard786/roommesh/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the relay YAML config (default config/relay.<RELAY_ENV>.yaml)")
	flag.Parse()

	logging.InitWithDefault(slog.LevelInfo)

	if err := run(*configPath); err != nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadRelay(configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fwd := relay.NewForwarder(relay.NewRegistry(), relay.Options{
		Logger:        slog.Default(),
		Metrics:       relay.NewMetrics(reg),
		MaxNameLength: cfg.MaxNameLength,
	})

	router := server.NewRouter(fwd, server.Options{
		Mode:           cfg.Mode,
		AllowedOrigins: cfg.AllowedOrigins,
		Client: relay.ClientOptions{
			WriteWait:  cfg.WriteWait,
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
			ReadLimit:  cfg.ReadLimit,
			SendBuffer: cfg.SendBuffer,
		},
		Gatherer: reg,
		Logger:   slog.Default(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting relay", "addr", srv.Addr, "mode", cfg.Mode, "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
