package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"chaptr/api"
	"chaptr/api/handlers/books"
	openaiclient "chaptr/internal/ai/openai"
	"chaptr/internal/config"
	"chaptr/internal/extract"
	"chaptr/internal/infra"
	"chaptr/internal/logger"
	"chaptr/internal/models"
	"chaptr/internal/rag"
	"chaptr/pkg/aiinterface"
)

func main() {
	env := flag.String("env", "dev", "environment name (dev, prod, test)")
	configPath := flag.String("config", "", "explicit config file path")
	flag.Parse()

	// .env is optional; real deployments set APP_ variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	defer infra.CloseDatabase()

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, &models.Book{}, &models.BookChunk{}); err != nil {
			return err
		}
	}

	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}

	embedTimeout := time.Duration(cfg.AI.OpenAI.TimeoutSeconds) * time.Second
	baseProvider := rag.NewOpenAIEmbeddingProvider(
		cfg.AI.OpenAI.APIKey,
		cfg.AI.OpenAI.BaseURL,
		cfg.AI.OpenAI.EmbeddingModel,
		cfg.AI.OpenAI.MaxRetries,
		embedTimeout,
	)
	cacheTTL, _ := time.ParseDuration(cfg.RAG.CacheTTL)
	cache := rag.NewEmbeddingCache(redisClient, "emb:", cacheTTL)
	provider := rag.NewCachedEmbeddingProvider(baseProvider, cache)

	var store rag.VectorStore
	switch cfg.RAG.VectorBackend {
	case "pgvector":
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("pgvector backend requires the postgres driver")
		}
		store, err = rag.NewPgVectorStore(db)
		if err != nil {
			return err
		}
	default:
		store = rag.NewMemoryVectorStore()
	}

	chunker := rag.NewChunker(cfg.RAG.ChunkTargetSize, cfg.RAG.ChunkMaxSize, cfg.RAG.ChunkOverlap)
	extractor := extract.NewService()

	bookService := rag.NewBookService(db, store, extractor, int64(cfg.Upload.MaxFileSizeMB)<<20)
	processor := rag.NewProcessor(db, chunker, provider, store, extractor)
	retriever := rag.NewRetriever(provider, store, cfg.RAG.MaxTopK, cfg.RAG.DefaultTopK)

	chatClient, err := openaiclient.NewClient(&aiinterface.ClientConfig{
		APIKey:     cfg.AI.OpenAI.APIKey,
		BaseURL:    cfg.AI.OpenAI.BaseURL,
		Model:      cfg.AI.OpenAI.ChatModel,
		MaxRetries: cfg.AI.OpenAI.MaxRetries,
		Timeout:    cfg.AI.OpenAI.TimeoutSeconds,
	})
	if err != nil {
		return err
	}
	defer chatClient.Close()

	chatService := rag.NewChatService(
		bookService, retriever, chatClient,
		cfg.RAG.MaxHistoryTurns, cfg.RAG.RelevanceFloor,
		time.Duration(cfg.AI.OpenAI.TimeoutSeconds)*time.Second,
	)

	handler := books.NewHandler(bookService, processor, chatService)
	router := api.SetupRouter(cfg.Server.Mode, handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
