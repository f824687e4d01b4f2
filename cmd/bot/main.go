// File: cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/config"
	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/ports/adapter"
	"khqr-payment-bot/internal/domain/ports/repository"
	"khqr-payment-bot/internal/infra/adapters/bakong"
	"khqr-payment-bot/internal/infra/adapters/qrimage"
	tele "khqr-payment-bot/internal/infra/adapters/telegram"
	"khqr-payment-bot/internal/infra/db/memory"
	pg "khqr-payment-bot/internal/infra/db/postgres"
	opshttp "khqr-payment-bot/internal/infra/http"
	"khqr-payment-bot/internal/infra/i18n"
	"khqr-payment-bot/internal/infra/logging"
	"khqr-payment-bot/internal/infra/metrics"
	red "khqr-payment-bot/internal/infra/redis"
	"khqr-payment-bot/internal/infra/sched"
	"khqr-payment-bot/internal/infra/worker"
	"khqr-payment-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", config.DefaultPath, "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (simulated Bakong, console logs)")
	simulate := flag.String("simulate", "", `with bot.mode=noop, request one payment for this amount text, e.g. "2.50" or "10000 KHR"`)
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo("bot", version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	logger.Info().
		Str("bakong_url", cfg.Bakong.BaseURL).
		Str("bakong_token", logging.Redact(cfg.Bakong.Token, cfg.Runtime.Dev)).
		Dur("check_interval", cfg.Payment.CheckInterval).
		Dur("max_wait", cfg.Payment.MaxWait).
		Int("max_attempts", cfg.Payment.MaxAttempts()).
		Msg("starting khqr payment bot")

	health := map[string]opshttp.HealthCheck{}

	// ---- Storage ----
	var (
		checks repository.PaymentCheckRepository
		tm     repository.TransactionManager
	)
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres migrate")
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
		checks = pg.NewPaymentCheckRepo(pool)
		tm = pg.NewTxManager(pool)
		health["postgres"] = pool.Ping
		logger.Info().Msg("storage: postgres")
	} else {
		checks = memory.NewPaymentCheckRepo()
		tm = memory.TxManager{}
		logger.Warn().Msg("storage: in-memory; pending checks are lost on restart")
	}

	// ---- Redis ----
	var (
		rateLimiter *red.RateLimiter
		locker      red.Locker
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		rateLimiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
		health["redis"] = redisClient.Ping
	}

	// ---- i18n ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("translator")
	}

	// ---- Bakong ----
	provider := newProvider(cfg, logger)
	renderer := qrimage.NewPNGRenderer(0)

	// ---- Telegram ----
	window := cfg.Payment.MaxWait
	var (
		bot     adapter.TelegramBotAdapter
		realBot *tele.RealTelegramBotAdapter
	)
	if strings.ToLower(cfg.Bot.Mode) == "noop" {
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		if cfg.Bot.Mode != "polling" {
			logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot.mode not implemented; falling back to polling")
		}
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, window, rateLimiter, translator, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		if err := realBot.CheckConflict(); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				logger.Fatal().Msg("another bot instance is already polling with this token")
			}
			logger.Fatal().Err(err).Msg("telegram preflight")
		}
		if err := realBot.SetMenuCommands(ctx); err != nil {
			logger.Warn().Err(err).Msg("set menu commands")
		}
		bot = realBot
	}

	// ---- Use case ----
	paymentUC := usecase.NewPaymentUseCase(checks, provider, renderer, bot, tm, translator, usecase.PaymentOptions{
		MaxAttempts: cfg.Payment.MaxAttempts(),
		Window:      window,
	}, logger)

	// ---- Status checks ----
	pool := worker.NewPool(cfg.Payment.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	poller := sched.NewPaymentPoller(paymentUC, pool, locker, cfg.Payment.CheckInterval, logger)
	defer poller.Stop()
	if _, err := poller.Resume(ctx); err != nil {
		logger.Error().Err(err).Msg("resume pending checks")
	}
	reconciler := sched.NewPaymentReconciler(poller, time.Minute, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Ops HTTP ----
	ops := opshttp.NewServer(cfg.HTTP.Port, health, logger)
	go func() {
		if err := ops.Start(); err != nil {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// ---- Telegram polling ----
	errc := make(chan error, 1)
	if realBot != nil {
		realBot.Attach(paymentUC, poller)
		go func() { errc <- realBot.StartPolling(ctx) }()
	} else if *simulate != "" {
		check, err := paymentUC.Request(ctx, usecase.RequestInput{ChatID: 1, MessageID: 1, Text: *simulate})
		if err != nil {
			logger.Error().Err(err).Msg("simulated request")
		} else {
			poller.Schedule(check)
		}
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if errors.Is(err, domain.ErrConflict) {
			logger.Error().Msg("telegram conflict: another instance took over polling")
			exitCode = 1
		} else if err != nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
			exitCode = 1
		}
	}
	cancel()
	if realBot != nil {
		realBot.StopPolling()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("ops server shutdown")
	}
	if exitCode != 0 {
		poller.Stop()
		pool.Stop()
		os.Exit(exitCode)
	}
}

func newProvider(cfg *config.Config, logger *zerolog.Logger) adapter.PaymentProvider {
	if cfg.Runtime.Dev && cfg.Bakong.Token == "" {
		m := cfg.Bakong.Merchant
		logger.Warn().Int("paid_after", cfg.Payment.SimulatePaidAfter).Msg("bakong: simulated provider")
		return bakong.NewNoopProvider(bakong.Merchant{
			AccountID:     cfg.Bakong.AccountID,
			Name:          m.Name,
			City:          m.City,
			StoreLabel:    m.StoreLabel,
			PhoneNumber:   m.PhoneNumber,
			TerminalLabel: m.TerminalLabel,
		}, cfg.Payment.SimulatePaidAfter, logger)
	}
	p, err := bakong.NewProvider(&cfg.Bakong, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bakong")
	}
	return p
}
