package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/dago-node-tags/internal/applications"
	"github.com/aescanero/dago-node-tags/internal/config"
	"github.com/aescanero/dago-node-tags/internal/eval/cel"
	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
	"github.com/aescanero/dago-node-tags/internal/platform/discord"
	"github.com/aescanero/dago-node-tags/internal/store"
	"github.com/aescanero/dago-node-tags/internal/tags"
	"github.com/aescanero/dago-node-tags/internal/worker"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tags worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	st := store.NewRedis(redisClient, cfg.KeyPrefix, logger)

	interpreter, err := initInterpreter(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize interpreter", zap.Error(err))
	}

	catalog, err := initCatalog(cfg)
	if err != nil {
		logger.Fatal("failed to load messages", zap.Error(err))
	}

	service := tags.NewService(st, interpreter, catalog, tags.Limits{
		TagScript:  cfg.TagScriptLimit,
		Body:       cfg.BodyLimit,
		GuildTags:  cfg.MaxGuildTags,
		GlobalTags: cfg.MaxGlobalTags,
	}, logger)

	// Start worker
	w := worker.NewWorker(cfg, redisClient, service, logger)
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Start health server
	healthServer := worker.NewHealthServer(cfg.HealthPort, redisClient, cfg.InvokeStream, w.Running, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Start the Discord frontend when a token is configured
	var bot *discord.Bot
	if cfg.DiscordEnabled() {
		session, err := discord.NewSession(cfg.DiscordToken)
		if err != nil {
			logger.Fatal("failed to create discord session", zap.Error(err))
		}

		flow := applications.NewFlow(st, interpreter, catalog, discord.NewPublisher(session, logger), logger)
		flow.BodyLimit = cfg.BodyLimit
		bot = discord.NewBot(session, discord.Config{
			Prefix: cfg.CommandPrefix,
			Owners: cfg.BotOwners,
		}, service, applications.NewManager(st, logger), flow, logger)

		if err := bot.Start(); err != nil {
			logger.Fatal("failed to start discord bot", zap.Error(err))
		}
	} else {
		logger.Warn("discord token not provided (bot frontend disabled)")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("tags worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if bot != nil {
		if err := bot.Stop(); err != nil {
			logger.Error("failed to stop discord bot", zap.Error(err))
		}
	}

	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("worker stopped gracefully")
	}
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// initInterpreter builds the interpreter with CEL-backed math
func initInterpreter(cfg *config.Config, logger *zap.Logger) (*tagscript.Interpreter, error) {
	opts := []tagscript.Option{
		tagscript.WithMaxDepth(cfg.MaxDepth),
		tagscript.WithLogger(logger),
	}
	if cfg.DotParameter {
		opts = append(opts, tagscript.WithDotParameter())
	}
	return tagscript.NewInterpreter(tagscript.DefaultBlocks(cel.NewEvaluator()), opts...)
}

// initCatalog loads the feedback messages with optional overrides
func initCatalog(cfg *config.Config) (*template.Catalog, error) {
	catalog := template.NewCatalog(template.NewEngine())
	if cfg.MessagesFile == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(cfg.MessagesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := catalog.LoadYAML(data); err != nil {
		return nil, err
	}
	return catalog, nil
}
