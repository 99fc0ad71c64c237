package core

import (
	"context"
	"strings"
	"time"

	"gwi.com/persona-chat/internal/logger"
)

const (
	DefaultTopK = 3

	contextLabel     = "\n\nRelevant context from documents:\n"
	contextSeparator = "\n\n"
)

// RAGService looks up document context for a chat turn. It never fails: any
// problem on the way degrades to an empty context block.
type RAGService struct {
	embedder Embedder
	index    VectorIndex
	topK     int
	timeout  time.Duration
	log      *logger.Logger
}

// NewRAGService accepts nil clients when credentials are not configured.
func NewRAGService(embedder Embedder, index VectorIndex, topK int, timeout time.Duration, log *logger.Logger) *RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RAGService{
		embedder: embedder,
		index:    index,
		topK:     topK,
		timeout:  timeout,
		log:      log.With("service", "RAGService"),
	}
}

// Retrieve returns the labelled context block for query, or "" when nothing
// relevant can be found.
func (s *RAGService) Retrieve(ctx context.Context, query, botID string) string {
	if s.embedder == nil || s.index == nil {
		s.log.Debug("retrieval disabled: embedding or index credentials missing")
		return ""
	}
	if strings.TrimSpace(query) == "" || botID == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed, continuing without context", "bot_id", botID, "err", err)
		return ""
	}

	matches, err := s.index.Query(ctx, vector, s.topK, botID)
	if err != nil {
		s.log.Warn("vector query failed, continuing without context", "bot_id", botID, "err", err)
		return ""
	}
	if len(matches) == 0 {
		s.log.Debug("no relevant chunks found", "bot_id", botID)
		return ""
	}

	texts := make([]string, 0, min(len(matches), s.topK))
	for _, m := range matches[:min(len(matches), s.topK)] {
		texts = append(texts, m.Text)
	}
	s.log.Debug("retrieved relevant chunks", "bot_id", botID, "count", len(texts))
	return contextLabel + strings.Join(texts, contextSeparator)
}
