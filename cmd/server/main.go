package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-resources/pkg/resources/api"
	"github.com/tendant/simple-resources/pkg/resources/config"
	memorystorage "github.com/tendant/simple-resources/pkg/resources/storage/memory"
	s3storage "github.com/tendant/simple-resources/pkg/resources/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	components, err := cfg.Build(ctx, prometheus.DefaultRegisterer, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize resources", "err", err)
		os.Exit(1)
	}
	defer components.Close()

	slog.Info("Resources service configured",
		"database", cfg.DatabaseType,
		"storage", cfg.Storage.Backend,
		"staging_dir", cfg.StagingDir,
		"namespace", cfg.Namespace,
	)

	if backend, ok := components.Store.(*s3storage.Backend); ok {
		slog.Info("S3 durable store", "bucket", backend.Bucket(), "hosts", backend.Hosts())
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	handler := api.NewHandler(
		components.Trees,
		components.Pipeline,
		components.Proxy,
		components.Store,
		api.NewJWTAuth(cfg.JWTSecret),
	)
	server.R.Mount("/api", handler.Routes())
	server.R.Handle("/metrics", promhttp.Handler())

	// The in-process store delivers its own objects
	if backend, ok := components.Store.(*memorystorage.Backend); ok {
		server.R.Mount("/storage", http.StripPrefix("/storage", backend))
	}

	server.Run()
}
