package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gwi.com/persona-chat/internal/logger"
)

// Metadata keys stored with every chunk vector.
const (
	MetaPageContent = "pageContent"
	MetaSource      = "source"
	MetaBotID       = "botId"
	MetaFileID      = "fileId"
	MetaChunk       = "chunk"
)

type VectorEntry struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID       string
	Score    float64
	Text     string
	Source   string
	Metadata map[string]any
}

// VectorIndex stores chunk vectors and answers similarity queries. Queries are
// always scoped to one bot.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []VectorEntry) (int, error)
	Query(ctx context.Context, vector []float32, topK int, botID string) ([]VectorMatch, error)
	Delete(ctx context.Context, ids []string) error
}

// matchFromMetadata validates a stored match against the bot it was queried
// for. Entries without a bot tag or text are never returned.
func matchFromMetadata(id string, score float64, md map[string]any, botID string) (VectorMatch, bool) {
	tag, _ := md[MetaBotID].(string)
	if tag == "" || tag != botID {
		return VectorMatch{}, false
	}
	text, _ := md[MetaPageContent].(string)
	if strings.TrimSpace(text) == "" {
		return VectorMatch{}, false
	}
	source, _ := md[MetaSource].(string)
	return VectorMatch{ID: id, Score: score, Text: text, Source: source, Metadata: md}, true
}

const (
	defaultPineconeAPIVersion = "2025-04"
	defaultPineconeBaseURL    = "https://api.pinecone.io"

	pineconeUpsertBatch = 100
	pineconeDeleteBatch = 1000
)

type PineconeConfig struct {
	APIKey     string
	IndexName  string
	Host       string
	Namespace  string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
}

// PineconeIndex talks to the Pinecone REST data plane. When no host is
// configured it is resolved once through describe-index.
type PineconeIndex struct {
	cfg  PineconeConfig
	http *http.Client
	log  *logger.Logger

	mu   sync.Mutex
	host string
}

var _ VectorIndex = (*PineconeIndex)(nil)

func NewPineconeIndex(cfg PineconeConfig, log *logger.Logger) (*PineconeIndex, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: PINECONE_API_KEY", ErrConfigMissing)
	}
	if strings.TrimSpace(cfg.IndexName) == "" && strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: PINECONE_INDEX_NAME", ErrConfigMissing)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultPineconeAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPineconeBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PineconeIndex{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("service", "PineconeIndex"),
		host: normalizeHost(cfg.Host),
	}, nil
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeUpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type pineconeQueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"matches"`
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

type pineconeIndexDescription struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

// Upsert writes entries in batches. Any failed batch fails the call.
func (p *PineconeIndex) Upsert(ctx context.Context, entries []VectorEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	written := 0
	for start := 0; start < len(entries); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(entries))
		req := pineconeUpsertRequest{Namespace: p.cfg.Namespace}
		for _, e := range entries[start:end] {
			req.Vectors = append(req.Vectors, pineconeVector{ID: e.ID, Values: e.Values, Metadata: e.Metadata})
		}
		resp, err := doJSON[pineconeUpsertResponse](p, ctx, http.MethodPost, host+"/vectors/upsert", req)
		if err != nil {
			return written, fmt.Errorf("%w: %v", ErrIndexWrite, err)
		}
		written += resp.UpsertedCount
	}
	return written, nil
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int, botID string) ([]VectorMatch, error) {
	if botID == "" {
		return nil, fmt.Errorf("%w: bot id required", ErrIndexQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector required", ErrIndexQuery)
	}
	if topK <= 0 {
		topK = 3
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexQuery, err)
	}

	req := pineconeQueryRequest{
		Namespace:       p.cfg.Namespace,
		Vector:          vector,
		TopK:            topK,
		Filter:          map[string]any{MetaBotID: map[string]any{"$eq": botID}},
		IncludeMetadata: true,
	}
	resp, err := doJSON[pineconeQueryResponse](p, ctx, http.MethodPost, host+"/query", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexQuery, err)
	}

	matches := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		match, ok := matchFromMetadata(m.ID, m.Score, m.Metadata, botID)
		if !ok {
			p.log.Warn("dropping match outside bot scope", "id", m.ID, "bot_id", botID)
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (p *PineconeIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	for start := 0; start < len(ids); start += pineconeDeleteBatch {
		end := min(start+pineconeDeleteBatch, len(ids))
		req := pineconeDeleteRequest{IDs: ids[start:end], Namespace: p.cfg.Namespace}
		if _, err := doJSON[map[string]any](p, ctx, http.MethodPost, host+"/vectors/delete", req); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexWrite, err)
		}
	}
	return nil
}

func (p *PineconeIndex) resolveHost(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host != "" {
		return p.host, nil
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/indexes/" + p.cfg.IndexName
	desc, err := doJSON[pineconeIndexDescription](p, ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("describe index %s: %w", p.cfg.IndexName, err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return "", fmt.Errorf("describe index %s returned empty host", p.cfg.IndexName)
	}
	p.host = normalizeHost(desc.Host)
	p.log.Info("resolved index host", "index", p.cfg.IndexName, "host", p.host)
	return p.host, nil
}

func doJSON[T any](p *PineconeIndex, ctx context.Context, method, url string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", p.cfg.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone decode error: %w", err)
	}
	return &out, nil
}
