package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"gwi.com/persona-chat/internal/logger"
)

// VectorLedger remembers which vector ids were written for which file so they
// can be deleted later.
type VectorLedger interface {
	RecordVectorIDs(ctx context.Context, botID, fileID string, ids []string) error
	DeleteVectorRecords(ctx context.Context, ids []string) error
	// HasContextFile reports whether fileID is still attached to botID.
	HasContextFile(ctx context.Context, botID, fileID string) (bool, error)
}

type IngestRequest struct {
	BotID    string
	FileID   string
	Path     string
	MimeType string
	Source   string // display name stored with every chunk
}

type IngestResult struct {
	Chunks    int
	Indexed   int
	Dropped   int
	VectorIDs []string
}

// IngestionService turns documents into bot-scoped chunk vectors. It is the
// only writer to the vector index.
type IngestionService struct {
	extractor Extractor
	chunker   *Chunker
	embedder  Embedder
	index     VectorIndex
	ledger    VectorLedger

	pool     *ants.Pool
	inflight sync.WaitGroup
	timeout  time.Duration
	log      *logger.Logger
}

type IngestionOption func(*IngestionService) error

// WithPoolSize sets the number of background ingestion workers.
func WithPoolSize(size int) IngestionOption {
	return func(s *IngestionService) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithIngestTimeout bounds each background ingestion.
func WithIngestTimeout(d time.Duration) IngestionOption {
	return func(s *IngestionService) error {
		if d > 0 {
			s.timeout = d
		}
		return nil
	}
}

func WithLedger(l VectorLedger) IngestionOption {
	return func(s *IngestionService) error {
		s.ledger = l
		return nil
	}
}

// NewIngestionService builds the pipeline. embedder and index may be nil when
// their credentials are not configured; Ingest then fails with
// ErrConfigMissing.
func NewIngestionService(extractor Extractor, chunker *Chunker, embedder Embedder, index VectorIndex, log *logger.Logger, opts ...IngestionOption) (*IngestionService, error) {
	if extractor == nil || chunker == nil {
		return nil, errors.New("extractor and chunker are required")
	}

	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	s := &IngestionService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		pool:      pool,
		timeout:   5 * time.Minute,
		log:       log.With("service", "IngestionService"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.pool.Release()
			return nil, err
		}
	}
	return s, nil
}

// Ingest extracts, chunks, embeds and indexes one document. Running it twice
// for the same document writes a second, independent set of vectors.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if s.embedder == nil || s.index == nil {
		return nil, fmt.Errorf("%w: embedding and vector index credentials are required for ingestion", ErrConfigMissing)
	}
	if req.BotID == "" {
		return nil, fmt.Errorf("%w: bot id is required", ErrValidation)
	}
	log := s.log.With("bot_id", req.BotID, "file_id", req.FileID, "source", req.Source)

	text, err := s.extractor.Extract(ctx, req.Path, req.MimeType)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(text)
	result := &IngestResult{Chunks: len(chunks)}
	if len(chunks) == 0 {
		log.Info("no content indexed: document produced no chunks")
		return result, nil
	}

	batch, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]VectorEntry, 0, len(chunks))
	for i, chunk := range chunks {
		if !batch.OK(i) {
			result.Dropped++
			log.Warn("dropping chunk without embedding", "chunk", i)
			continue
		}
		entries = append(entries, VectorEntry{
			ID:     uuid.NewString(),
			Values: batch.Vectors[i],
			Metadata: map[string]any{
				MetaPageContent: chunk,
				MetaSource:      req.Source,
				MetaBotID:       req.BotID,
				MetaFileID:      req.FileID,
				MetaChunk:       i,
			},
		})
	}
	if len(entries) == 0 {
		log.Warn("no content indexed: every chunk failed to embed", "chunks", len(chunks))
		return result, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	if _, err := s.index.Upsert(ctx, entries); err != nil {
		log.Error("vector upsert failed", "entries", len(entries), "err", err)
		// earlier batches may already be live
		s.rollback(ctx, log, ids)
		return result, err
	}

	if s.ledger != nil {
		if err := s.ledger.RecordVectorIDs(ctx, req.BotID, req.FileID, ids); err != nil {
			s.rollback(ctx, log, ids)
			return result, fmt.Errorf("%w: record vector ids: %v", ErrInternal, err)
		}
		if req.FileID != "" {
			attached, err := s.ledger.HasContextFile(ctx, req.BotID, req.FileID)
			if err != nil {
				log.Warn("failed to confirm file is still attached", "err", err)
			} else if !attached {
				log.Info("file detached during ingestion, removing its vectors", "entries", len(ids))
				if s.rollback(ctx, log, ids) {
					if err := s.ledger.DeleteVectorRecords(context.WithoutCancel(ctx), ids); err != nil {
						log.Error("failed to delete vector records", "err", err)
					}
				}
				return result, nil
			}
		}
	}

	result.Indexed = len(entries)
	result.VectorIDs = ids
	log.Info("document ingested", "chunks", result.Chunks, "indexed", result.Indexed, "dropped", result.Dropped)
	return result, nil
}

// rollback deletes vectors that must not stay in the index and reports whether
// the delete succeeded.
func (s *IngestionService) rollback(ctx context.Context, log *logger.Logger, ids []string) bool {
	if err := s.index.Delete(context.WithoutCancel(ctx), ids); err != nil {
		log.Error("failed to roll back vectors", "entries", len(ids), "err", err)
		return false
	}
	return true
}

// Submit queues req for background ingestion. The outcome is only logged.
func (s *IngestionService) Submit(req IngestRequest) error {
	s.inflight.Add(1)
	err := s.pool.Submit(func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.Ingest(ctx, req); err != nil {
			s.log.Error("background ingestion failed", "bot_id", req.BotID, "file_id", req.FileID, "source", req.Source, "err", err)
		}
	})
	if err != nil {
		s.inflight.Done()
		return fmt.Errorf("failed to queue ingestion: %w", err)
	}
	return nil
}

// Wait blocks until every submitted ingestion has finished.
func (s *IngestionService) Wait() {
	s.inflight.Wait()
}

// Release waits for queued work and stops the worker pool.
func (s *IngestionService) Release() {
	s.inflight.Wait()
	s.pool.Release()
}
