package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/xaenox/lummy-bot/internal/bot"
	"github.com/xaenox/lummy-bot/internal/corpus"
	"github.com/xaenox/lummy-bot/internal/matcher"
	"github.com/xaenox/lummy-bot/internal/storage"
	"github.com/xaenox/lummy-bot/pkg/config"
	"go.uber.org/zap"
)

var configPath = flag.String("config", "config.yaml", "Path to the configuration file")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.Telegram.Token == "" {
		logger.Fatal("Telegram token is not set (telegram.token or TELEGRAM_TOKEN)")
	}

	entries, err := corpus.LoadFile(cfg.Corpus.Path)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.Error(err), zap.String("path", cfg.Corpus.Path))
	}
	logger.Info("Corpus loaded", zap.Int("entries", len(entries)))

	store, err := storage.New(cfg.Storage.StorageOptions(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	b, err := bot.New(cfg.Telegram.Token, store, matcher.NewKeywordMatcher(entries), bot.Config{
		StorageKey: cfg.Session.StorageKey,
		ReplyDelay: cfg.Session.ReplyDelay,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}
