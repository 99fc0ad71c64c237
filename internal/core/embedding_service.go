package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"gwi.com/persona-chat/internal/logger"
)

const (
	defaultEmbeddingModelName = "text-embedding-004"

	// maxEmbedBatch is the largest batch BatchEmbedContents accepts.
	maxEmbedBatch = 100
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error)
}

// BatchEmbedding is aligned to the input of EmbedBatch: Vectors[i] belongs to
// texts[i]. Indices listed in Failed have a nil vector.
type BatchEmbedding struct {
	Vectors [][]float32
	Failed  []int
}

// OK reports whether the vector at i is usable.
func (b *BatchEmbedding) OK(i int) bool {
	return i < len(b.Vectors) && len(b.Vectors[i]) > 0
}

// alignBatch maps a raw remote response onto n inputs. Missing or empty
// vectors are marked failed instead of shifting later results.
func alignBatch(n int, raw [][]float32) *BatchEmbedding {
	out := &BatchEmbedding{Vectors: make([][]float32, n)}
	for i := 0; i < n; i++ {
		if i < len(raw) && len(raw[i]) > 0 {
			out.Vectors[i] = raw[i]
			continue
		}
		out.Failed = append(out.Failed, i)
	}
	return out
}

// embedBackend performs one remote batch call.
type embedBackend interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
	close() error
}

type geminiBackend struct {
	client *genai.Client
	model  string
}

func (g *geminiBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.model)
	if len(texts) == 1 {
		res, err := em.EmbedContent(ctx, genai.Text(texts[0]))
		if err != nil {
			return nil, err
		}
		if res.Embedding == nil {
			return [][]float32{nil}, nil
		}
		return [][]float32{res.Embedding.Values}, nil
	}

	b := em.NewBatch()
	for _, t := range texts {
		b.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, b)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e != nil {
			out[i] = e.Values
		}
	}
	return out, nil
}

func (g *geminiBackend) close() error {
	return g.client.Close()
}

// GeminiEmbedder embeds text with the Gemini embedding API. Every remote call
// waits on a shared rate limiter and runs under its own timeout.
type GeminiEmbedder struct {
	backend embedBackend
	limiter *rate.Limiter
	timeout time.Duration
	log     *logger.Logger
}

var _ Embedder = (*GeminiEmbedder)(nil)

type EmbedderConfig struct {
	APIKey     string
	Model      string
	RatePerSec int
	Timeout    time.Duration
}

func NewGeminiEmbedder(ctx context.Context, cfg EmbedderConfig, log *logger.Logger) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY", ErrConfigMissing)
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiEmbedder(&geminiBackend{client: client, model: cfg.Model}, cfg, log), nil
}

func newGeminiEmbedder(backend embedBackend, cfg EmbedderConfig, log *logger.Logger) *GeminiEmbedder {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = cfg.RatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GeminiEmbedder{
		backend: backend,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		log:     log.With("service", "GeminiEmbedder"),
	}
}

func (e *GeminiEmbedder) Close() {
	if err := e.backend.close(); err != nil {
		e.log.Warn("error closing GenAI client", "err", err)
	}
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	raw, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || len(raw[0]) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received", ErrEmbeddingService)
	}
	return raw[0], nil
}

// EmbedBatch embeds texts in slices of at most maxEmbedBatch. A failed remote
// call fails the whole batch.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error) {
	raw := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		part, err := e.call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		// pad or trim so the next slice stays aligned
		aligned := alignBatch(end-start, part)
		raw = append(raw, aligned.Vectors...)
	}

	out := alignBatch(len(texts), raw)
	if len(out.Failed) > 0 {
		e.log.Warn("embedding batch returned missing vectors", "requested", len(texts), "failed", len(out.Failed))
	}
	return out, nil
}

func (e *GeminiEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.backend.embed(callCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	return raw, nil
}
