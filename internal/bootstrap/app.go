package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/ai"
	appsvc "docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/index"
	"docchat/internal/logging"
	"docchat/internal/metrics"
	"docchat/internal/session"
)

type App struct {
	Config  *config.Config
	Session *session.Session
	Query   *appsvc.QueryService
	Ingest  *appsvc.IngestService
	Metrics *metrics.Metrics

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logging.Setup(cfg.App.LogLevel, cfg.App.LogFormat)

	var model session.Model
	client, err := ai.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		// The server still starts so /health can report the problem.
		log.Error().Err(err).Str("provider", cfg.LLM.Provider).Msg("llm client not initialized")
	} else {
		model = client
	}

	return NewWithModel(cfg, model)
}

// NewWithModel wires the application around an already constructed model,
// which may be nil. The persisted index, if any, is loaded once here.
func NewWithModel(cfg *config.Config, model session.Model) (*App, error) {
	m := metrics.New()
	indexOpts := index.Options{Compress: cfg.Index.Compress, EncryptionKey: cfg.Index.EncryptionKey}

	idx, err := index.Load(cfg.IndexPath(), indexOpts)
	switch {
	case err == nil:
		m.SetIndexChunks(idx.Len())
		log.Info().Str("path", cfg.IndexPath()).Int("chunks", idx.Len()).Msg("vector index loaded")
	case errors.Is(err, index.ErrIndexLoad):
		log.Warn().Err(err).Msg("no usable vector index on disk, starting empty")
		idx = nil
	default:
		return nil, err
	}

	sess := session.New(model, idx)
	ingest, err := appsvc.NewIngestService(sess, appsvc.IngestConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		IndexPath:    cfg.IndexPath(),
		IndexOptions: indexOpts,
	}, m)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Session:   sess,
		Query:     appsvc.NewQueryService(sess, cfg.RAG.TopK, m),
		Ingest:    ingest,
		Metrics:   m,
		StartedAt: time.Now(),
	}, nil
}

func (a *App) Close() error {
	if a.Ingest != nil {
		a.Ingest.Close()
	}
	return nil
}
