package main

import (
	"context"
	"fmt"

	"gwi.com/persona-chat/internal/api"
	"gwi.com/persona-chat/internal/auth"
	"gwi.com/persona-chat/internal/config"
	"gwi.com/persona-chat/internal/core"
	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

// application holds the wired services shared by every command.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *store.SQLiteStore
	embedder  *core.GeminiEmbedder
	ingestion *core.IngestionService
	bots      *core.BotService
	chat      *core.ChatService
}

func newApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*application, error) {
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app := &application{cfg: cfg, log: log, db: db}

	// Embedder and index stay nil interfaces when unconfigured so retrieval
	// degrades and ingestion reports ErrConfigMissing.
	var embedder core.Embedder
	if cfg.EmbeddingConfigured() {
		app.embedder, err = core.NewGeminiEmbedder(ctx, core.EmbedderConfig{
			APIKey:     cfg.GoogleAPIKey,
			Model:      cfg.EmbeddingModel,
			RatePerSec: cfg.EmbeddingRatePerSec,
			Timeout:    cfg.RemoteTimeout,
		}, log)
		if err != nil {
			app.close()
			return nil, err
		}
		embedder = app.embedder
	} else {
		log.Warn("GOOGLE_API_KEY not set, document retrieval is disabled")
	}

	var index core.VectorIndex
	switch {
	case cfg.VectorIndex == "memory":
		index = core.NewMemoryIndex(log)
	case cfg.PineconeConfigured():
		pc, err := core.NewPineconeIndex(core.PineconeConfig{
			APIKey:    cfg.PineconeAPIKey,
			IndexName: cfg.PineconeIndexName,
			Host:      cfg.PineconeIndexHost,
			Namespace: cfg.PineconeNamespace,
			Timeout:   cfg.RemoteTimeout,
		}, log)
		if err != nil {
			app.close()
			return nil, err
		}
		index = pc
	default:
		log.Warn("Pinecone credentials not set, document retrieval is disabled")
	}

	var llm *core.LLMService
	params := core.ModelParams{
		Model:       cfg.CompletionModel,
		MaxTokens:   cfg.CompletionMaxTokens,
		Temperature: cfg.CompletionTemperature,
	}
	if cfg.CompletionAPIKey != "" {
		llm, err = core.NewLLMService(core.LLMConfig{
			APIKey:  cfg.CompletionAPIKey,
			BaseURL: cfg.CompletionBaseURL,
			Params:  params,
			Timeout: cfg.RemoteTimeout,
		}, log)
		if err != nil {
			app.close()
			return nil, err
		}
	} else {
		log.Warn("GROQ_API_KEY not set, bots will answer with the fallback reply")
		llm = core.NewLLMServiceWithModel(nil, params, cfg.RemoteTimeout, log)
	}

	chunker, err := core.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		app.close()
		return nil, err
	}
	app.ingestion, err = core.NewIngestionService(core.NewFileExtractor(log), chunker, embedder, index, log,
		core.WithPoolSize(cfg.IngestWorkers), core.WithLedger(db))
	if err != nil {
		app.close()
		return nil, err
	}

	rag := core.NewRAGService(embedder, index, cfg.RetrievalTopK, cfg.RemoteTimeout, log)
	app.chat = core.NewChatService(db, rag, llm, cfg.HistoryCharBudget, log)
	app.bots = core.NewBotService(db, app.ingestion, index, cfg.UploadDir, cfg.MaxUploadBytes, log)
	return app, nil
}

func (a *application) handler() *api.APIHandler {
	return api.NewAPIHandler(api.Deps{
		Users:          a.db,
		Bots:           a.bots,
		Chat:           a.chat,
		Tokens:         auth.NewTokenIssuer(a.cfg.JWTSecret, a.cfg.JWTTTL),
		UploadDir:      a.cfg.UploadDir,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
		Log:            a.log,
	})
}

// close waits for queued ingestion before releasing clients and the store.
func (a *application) close() {
	if a.ingestion != nil {
		a.ingestion.Release()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", "err", err)
		}
	}
}
