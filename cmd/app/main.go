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

	"etodesk/internal/app"
	"etodesk/internal/infra/feed"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Pprof server, localhost only.
	go func() {
		slog.Info("pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Price pipeline: feed worker -> portfolio channel -> ledger/engine.
	bootstrap.Portfolio.StartProcessor(ctx)
	if cfg.Feed.WSURL != "" && len(cfg.Feed.Symbols) > 0 {
		worker := feed.NewWorker(cfg.Feed.WSURL, cfg.Feed.Symbols, bootstrap.Portfolio.TickerChan(), slog.Default())
		if err := worker.Connect(ctx); err != nil {
			slog.Error("feed worker failed to start", slog.Any("error", err))
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "feed worker started",
			slog.String("url", cfg.Feed.WSURL),
			slog.Int("symbols", len(cfg.Feed.Symbols)))
	}

	// Periodic sweep: DAY expiry and scheduled TWAP/VWAP slices.
	go func() {
		interval := time.Duration(cfg.Trading.SweepIntervalSec) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := bootstrap.Engine.Sweep(); n > 0 {
					slog.Debug("sweep transitioned orders", slog.Int("count", n))
				}
			}
		}
	}()

	// Faucet HTTP server.
	if bootstrap.Faucet != nil {
		srv := &http.Server{
			Addr:              cfg.Faucet.ListenAddr,
			Handler:           bootstrap.Faucet.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("faucet listening", slog.String("addr", cfg.Faucet.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("faucet server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	slog.InfoContext(ctx, "etodesk operational",
		slog.String("portfolio_value", bootstrap.TotalSeeded().String()))

	<-ctx.Done()

	slog.InfoContext(ctx, "shutting down gracefully")
}
