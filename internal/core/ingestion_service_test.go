package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/persona-chat/internal/logger"
)

const sampleDocument = "Freedonia is a small country.\n\nIts capital is Fredville. The national dish is duck soup.\n\n" +
	"Rufus T. Firefly became leader after a long and very confusing campaign."

func newTestIngestion(t *testing.T, ext Extractor, emb Embedder, idx VectorIndex, opts ...IngestionOption) *IngestionService {
	t.Helper()
	chunker, err := NewChunker(60, 10)
	require.NoError(t, err)
	svc, err := NewIngestionService(ext, chunker, emb, idx, logger.Nop(), append([]IngestionOption{WithPoolSize(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(svc.Release)
	return svc
}

func TestIngest_IndexesChunksWithMetadata(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	ledger := &fakeLedger{}
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, idx, WithLedger(ledger))

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "file-1", Source: "freedonia.pdf"})
	require.NoError(t, err)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, res.Indexed)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, res.Indexed, idx.Len())
	assert.Equal(t, res.VectorIDs, ledger.ids["bot-1/file-1"])

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 100, "bot-1")
	require.NoError(t, err)
	require.Len(t, matches, res.Indexed)
	for _, m := range matches {
		assert.Equal(t, "freedonia.pdf", m.Source)
		assert.Equal(t, "file-1", m.Metadata[MetaFileID])
		assert.True(t, strings.Contains(sampleDocument, m.Text))
	}
}

func TestIngest_DropsChunksWithoutEmbedding(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{failIdx: map[int]bool{1: true}}, idx)

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "file-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, res.Chunks-1, res.Indexed)
	assert.Equal(t, res.Indexed, idx.Len())
}

func TestIngest_AllChunksFailIsNotAnError(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	fail := map[int]bool{}
	for i := 0; i < 20; i++ {
		fail[i] = true
	}
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{failIdx: fail}, idx)

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1"})
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
	assert.Zero(t, idx.Len())
}

func TestIngest_AbortsWithoutIndexWrites(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())

	svc := newTestIngestion(t, &fakeExtractor{err: ErrExtraction}, &fakeEmbedder{}, idx)
	_, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1"})
	assert.ErrorIs(t, err, ErrExtraction)

	svc = newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{err: ErrEmbeddingService}, idx)
	_, err = svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1"})
	assert.ErrorIs(t, err, ErrEmbeddingService)

	assert.Zero(t, idx.Len())
}

func TestIngest_IndexWriteFailure(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, failingIndex{err: ErrIndexWrite}, WithLedger(ledger))

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "f"})
	assert.ErrorIs(t, err, ErrIndexWrite)
	require.NotNil(t, res)
	assert.Zero(t, res.Indexed)
	assert.Empty(t, ledger.ids)
}

func TestIngest_PartialUpsertRollsBack(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	ledger := &fakeLedger{}
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, partialIndex{MemoryIndex: idx, accept: 1}, WithLedger(ledger))

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "f"})
	assert.ErrorIs(t, err, ErrIndexWrite)
	require.NotNil(t, res)
	assert.Zero(t, res.Indexed)
	assert.Zero(t, idx.Len())
	assert.Empty(t, ledger.ids)
}

func TestIngest_FileDetachedDuringIngestion(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	ledger := &fakeLedger{detached: map[string]bool{"bot-1/gone": true}}
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, idx, WithLedger(ledger))

	res, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "gone"})
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
	assert.Zero(t, idx.Len())
	assert.Empty(t, ledger.ids)

	res, err = svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "kept"})
	require.NoError(t, err)
	assert.Equal(t, res.Indexed, idx.Len())
	assert.Len(t, ledger.ids["bot-1/kept"], res.Indexed)
}

func TestIngest_LedgerFailureRollsBackVectors(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, idx, WithLedger(&fakeLedger{err: errors.New("disk full")}))

	_, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1", FileID: "f"})
	assert.ErrorIs(t, err, ErrInternal)
	assert.Zero(t, idx.Len())
}

func TestIngest_MissingClients(t *testing.T) {
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, nil, nil)

	_, err := svc.Ingest(context.Background(), IngestRequest{BotID: "bot-1"})
	assert.ErrorIs(t, err, ErrConfigMissing)
}

// Re-ingesting a document is not deduplicated: each run writes fresh ids.
func TestIngest_NotIdempotent(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, idx)
	req := IngestRequest{BotID: "bot-1", FileID: "file-1", Source: "freedonia.pdf"}

	first, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Indexed, second.Indexed)
	assert.Equal(t, first.Indexed+second.Indexed, idx.Len())
	for _, id := range first.VectorIDs {
		assert.NotContains(t, second.VectorIDs, id)
	}
}

func TestIngest_SubmitRunsInBackground(t *testing.T) {
	idx := NewMemoryIndex(logger.Nop())
	svc := newTestIngestion(t, &fakeExtractor{text: sampleDocument}, &fakeEmbedder{}, idx)

	require.NoError(t, svc.Submit(IngestRequest{BotID: "bot-1", FileID: "a"}))
	require.NoError(t, svc.Submit(IngestRequest{BotID: "bot-2", FileID: "b"}))
	svc.Wait()

	one, err := idx.Query(context.Background(), []float32{1, 0}, 100, "bot-1")
	require.NoError(t, err)
	two, err := idx.Query(context.Background(), []float32{1, 0}, 100, "bot-2")
	require.NoError(t, err)
	assert.NotEmpty(t, one)
	assert.Equal(t, len(one), len(two))
}
