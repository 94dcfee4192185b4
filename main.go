package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice-service/api"
	_ "backoffice-service/docs"
	"backoffice-service/logger"
	"backoffice-service/service"
	"backoffice-service/service/config"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

var BASE_CONTEXT = ""

func init() {
	if val := os.Getenv("BASE_CONTEXT"); val != "" {
		BASE_CONTEXT = val
	}
}

// @title Backoffice Reconciliation & Alerting API
// @version 1.0
// @description Sync of the external system of record, deadline and stalled alerts, provider deduplication
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path of the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.InitLogger("info")
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg.Log.Level)

	if err := service.Init(cfg); err != nil {
		slog.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	deps := api.GlobalDependencies(cfg)
	mux := chi.NewRouter()
	if BASE_CONTEXT != "" {
		mux.Route(BASE_CONTEXT, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux, deps)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux, deps)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+cfg.Server.Port, mux)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.GracefulStop(); err != nil {
			slog.Error("failed to stop http service", "error", err)
		}
		service.Shutdown(ctx)
	}()

	slog.Info("backoffice service listening", "port", cfg.Server.Port, "base_context", BASE_CONTEXT)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("http service failed", "error", err)
		os.Exit(1)
	}
}
