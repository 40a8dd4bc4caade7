package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"multimodal-rag/agent"
	"multimodal-rag/config"
	"multimodal-rag/database"
	"multimodal-rag/llmclient"
	"multimodal-rag/rag"
	"multimodal-rag/session"
	"multimodal-rag/web"
	"multimodal-rag/web/middleware"
	"multimodal-rag/web/services"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewPostgresStore(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()
	store.SetFusionWeights(cfg.SemanticWeight, cfg.LexicalWeight)

	if err := store.EnsureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	client := llmclient.New(cfg, logger)
	retriever := rag.NewRetriever(store, client, cfg.RetrievalSize, logger)
	indexer := rag.NewIndexer(client, store, cfg.EmbedBatchSize, logger)

	ragAgent := agent.NewAgent(cfg, client, retriever, store, logger)

	conversations, err := session.NewConversationManager(cfg.ConversationMaxLength, cfg.SessionCacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to create conversation manager", zap.Error(err))
	}
	chunks, err := session.NewChunkManager(cfg.SessionCacheSize, cfg.ChunkPreviewChars, logger)
	if err != nil {
		logger.Fatal("Failed to create chunk manager", zap.Error(err))
	}
	chat := services.NewChatService(ragAgent, conversations, chunks, logger)

	limiter := middleware.NewSessionRateLimiter(middleware.RateLimiterConfig{
		MessagesPerMinute: cfg.RateLimitMessagesPerMin,
		BurstSize:         cfg.RateLimitBurstSize,
		CleanupInterval:   cfg.RateLimitCleanup,
	}, logger)
	defer limiter.Stop()

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cleanupService := web.NewCleanupService(chat, limiter, logger)
	go cleanupService.Run(ctx, cfg.RateLimitCleanup, cfg.SessionIdleTimeout)

	if cfg.ExportDir != "" {
		results, err := indexer.IndexDirectory(ctx, cfg.ExportDir)
		if err != nil {
			logger.Error("Failed to index export directory", zap.String("dir", cfg.ExportDir), zap.Error(err))
		} else {
			logger.Info("Indexed export directory", zap.String("dir", cfg.ExportDir), zap.Int("documents", len(results)))
		}

		if cfg.WatchExports {
			watcher, err := rag.NewExportWatcher(indexer, logger)
			if err != nil {
				logger.Fatal("Failed to create export watcher", zap.Error(err))
			}
			defer watcher.Close()
			go func() {
				if err := watcher.Watch(ctx, cfg.ExportDir); err != nil && ctx.Err() == nil {
					logger.Error("Export watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	webServer := web.NewServer(web.Dependencies{
		Chat:      chat,
		Documents: store,
		Indexer:   indexer,
		DB:        store,
		Limiter:   limiter,
	}, logger, cfg)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting multimodal RAG web server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
