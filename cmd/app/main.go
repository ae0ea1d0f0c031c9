package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dex_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Background Asset Sync (Simulating Loading Screen logic)
	go bootstrap.SyncAssets(ctx)

	// 5. Node connections
	if err := bootstrap.WS.Connect(ctx); err != nil {
		slog.Error("Failed to start websocket worker", slog.Any("error", err))
	}

	// 6. Initial market selection + push subscriptions
	if err := bootstrap.SelectInitialMarket(ctx); err != nil {
		slog.Error("❌ Initial market selection failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 7. Background refresh of the hot read paths
	if err := bootstrap.Poller.Start(ctx); err != nil {
		slog.Error("Failed to start poller", slog.Any("error", err))
	}

	slog.InfoContext(ctx, "✨ Dex Go fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
