package core

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/utils"
)

// MemoryIndex is an in-process VectorIndex ranked by cosine similarity. It is
// used for local development and tests; contents are lost on restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]VectorEntry
	log     *logger.Logger
}

var _ VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex(log *logger.Logger) *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]VectorEntry),
		log:     log.With("service", "MemoryIndex"),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, entries []VectorEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" || len(e.Values) == 0 {
			return 0, fmt.Errorf("%w: entry missing id or values", ErrIndexWrite)
		}
	}
	for _, e := range entries {
		e.Metadata = maps.Clone(e.Metadata)
		m.entries[e.ID] = e
	}
	return len(entries), nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, botID string) ([]VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexQuery, err)
	}
	if botID == "" {
		return nil, fmt.Errorf("%w: bot id required", ErrIndexQuery)
	}
	if topK <= 0 {
		topK = 3
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []VectorMatch
	for id, e := range m.entries {
		score, err := utils.CosineSimilarity(vector, e.Values)
		if err != nil {
			m.log.Debug("skipping entry", "id", id, "err", err)
			continue
		}
		match, ok := matchFromMetadata(id, float64(score), e.Metadata, botID)
		if !ok {
			continue
		}
		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
