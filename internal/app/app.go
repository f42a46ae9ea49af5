// Package app is the composition root: it dials PostgreSQL and the
// Gemini API, runs migrations, and assembles the chat engine with its
// store and retriever. Both the HTTP server and the local REPL build on
// the same App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baronchat/baron/db"
	"github.com/baronchat/baron/internal/chat"
	"github.com/baronchat/baron/internal/config"
	"github.com/baronchat/baron/internal/history"
	"github.com/baronchat/baron/internal/llm"
	"github.com/baronchat/baron/internal/log"
	"github.com/baronchat/baron/internal/search"
)

const sweepInterval = 10 * time.Minute

// App bundles the long-lived dependencies of the chat service.
type App struct {
	Pool    *pgxpool.Pool
	Models  *llm.Handle
	History *history.Store
	Engine  *chat.Engine

	sweepCancel context.CancelFunc
}

// Setup dials all backends, migrates the schema and wires the engine.
// On error everything already opened is closed before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := db.Migrate(cfg.Storage.URL); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Storage.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	models, err := llm.NewHandle(ctx, llm.Config{
		APIKey:            cfg.LLM.APIKey,
		ModelName:         cfg.LLM.ModelName,
		EmbedModel:        cfg.Embedding.ModelName,
		EmbedDim:          cfg.Embedding.Dimensionality,
		SystemInstruction: cfg.Chat.SystemInstruction,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	store, err := history.New(pool, time.Duration(cfg.Chat.HistoryTTLSecs)*time.Second, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	searcher, err := search.New(pool, handleEmbedder{models}, search.Config{
		Limit:    cfg.Search.SearchLimit,
		MinScore: cfg.Search.MinScore,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	engine, err := chat.NewEngine(store, searcher, chat.Config{
		Quota: chat.QuotaConfig{
			Cap:             cfg.Chat.MaxUserMessages,
			WarnTemplate:    cfg.Chat.WarnTemplate,
			WarnLastMessage: cfg.Chat.WarnLastMessage,
			BlockedMessage:  cfg.Chat.BlockedMessage,
		},
		FieldsForLLM:      cfg.Fields.ForLLM,
		FieldsForFrontend: cfg.Fields.ForFrontend,
		NoResultMessage:   cfg.Chat.NoResult,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	store.StartSweeper(sweepCtx, sweepInterval)

	return &App{
		Pool:        pool,
		Models:      models,
		History:     store,
		Engine:      engine,
		sweepCancel: sweepCancel,
	}, nil
}

// Close stops the background sweeper and releases the connection pool.
func (a *App) Close() {
	a.sweepCancel()
	a.Pool.Close()
}

// handleEmbedder embeds with whatever client the handle currently holds,
// so a rebuilt client is picked up without rewiring the searcher.
type handleEmbedder struct {
	h *llm.Handle
}

func (e handleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.h.Client().Embed(ctx, text)
}
