package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trivia-duel/cache"
	"trivia-duel/config"
	"trivia-duel/database"
	"trivia-duel/handlers"
	"trivia-duel/realtime"
	"trivia-duel/services"
	"trivia-duel/utils"
	"trivia-duel/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/lmittmann/tint"
)

func newLogger(production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug, AddSource: true}))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Production)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	if err := database.Migrate(db); err != nil {
		fatal(logger, "failed to migrate database", err)
	}
	if err := database.Seed(db); err != nil {
		fatal(logger, "failed to seed database", err)
	}

	var questionCache *cache.QuestionCache
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			fatal(logger, "failed to connect to redis", err)
		}
		defer rdb.Close()
		questionCache = cache.NewQuestionCache(rdb, cfg.QuestionCache)
		logger.Info("question cache enabled", "ttl", cfg.QuestionCache)
	}

	engine := services.NewMatchEngine(db, config.PartySize, logger)
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.Endpoint)
		if err != nil {
			fatal(logger, "failed to initialize R2 client", err)
		}
		engine.Archiver = services.NewArchiveService(db, store, logger)
		logger.Info("match archive enabled", "bucket", cfg.R2.Bucket)
	}

	gateway := realtime.NewGateway(engine, logger)
	tokens := utils.NewTokenIssuer(cfg.AuthSecret, cfg.TokenTTL)

	matchmaker := workers.NewMatchmaker(db, gateway.OnMatchCreated, logger)
	matchmaker.QuestionsPerMatch = cfg.QuestionsPerMatch
	matchmaker.ClaimTimeout = cfg.ClaimTimeout
	matchmaker.Interval = cfg.PollInterval

	matchmakerDone := make(chan struct{})
	go func() {
		defer close(matchmakerDone)
		if err := matchmaker.Run(ctx); err != nil {
			logger.Error("matchmaker exited", "error", err)
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:               "trivia-duel",
		DisableStartupMessage: cfg.Production,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(ctx, app, handlers.Deps{
		Tokens:     tokens,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Auth:       services.NewAuthService(db, tokens),
		Queue:      services.NewQueueService(db),
		Questions:  services.NewQuestionService(db, questionCache),
		Matches:    services.NewMatchService(db),
		Gateway:    gateway,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()
	logger.Info("server running", "port", cfg.Port, "origins", cfg.AllowedOrigins, "production", cfg.Production)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	<-matchmakerDone
}
