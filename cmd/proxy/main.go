// File: cmd/proxy/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"khqr-payment-bot/internal/config"
	"khqr-payment-bot/internal/infra/logging"
	"khqr-payment-bot/internal/infra/metrics"
	"khqr-payment-bot/internal/infra/proxy"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", config.DefaultPath, "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateProxy(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo("proxy", version, commit)

	srv, err := proxy.NewServer(cfg.Proxy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("proxy")
	}
	if cfg.Proxy.BakongToken == "" {
		logger.Warn().Msg("no bakong token configured; callers must send their own Authorization header")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Fatal().Err(err).Msg("proxy server error")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("proxy shutdown")
	}
}
