package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string, string) (string, error) {
	return f.text, f.err
}

// fakeEmbedder maps every text to the same unit vector unless told otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	err     error
	failIdx map[int]bool
	queries []string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) (*BatchEmbedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw := make([][]float32, len(texts))
	for i := range texts {
		if f.failIdx[i] {
			continue
		}
		raw[i] = []float32{1, 0}
	}
	return alignBatch(len(texts), raw), nil
}

type fakeLedger struct {
	mu       sync.Mutex
	ids      map[string][]string
	err      error
	detached map[string]bool
}

func (f *fakeLedger) RecordVectorIDs(_ context.Context, botID, fileID string, ids []string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[string][]string)
	}
	f.ids[botID+"/"+fileID] = append(f.ids[botID+"/"+fileID], ids...)
	return nil
}

func (f *fakeLedger) DeleteVectorRecords(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	for key, recorded := range f.ids {
		var left []string
		for _, id := range recorded {
			if !gone[id] {
				left = append(left, id)
			}
		}
		if len(left) == 0 {
			delete(f.ids, key)
			continue
		}
		f.ids[key] = left
	}
	return nil
}

func (f *fakeLedger) HasContextFile(_ context.Context, botID, fileID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.detached[botID+"/"+fileID], nil
}

// partialIndex stores the first accept entries of an upsert, then fails.
type partialIndex struct {
	*MemoryIndex
	accept int
}

func (p partialIndex) Upsert(ctx context.Context, entries []VectorEntry) (int, error) {
	n := min(p.accept, len(entries))
	if _, err := p.MemoryIndex.Upsert(ctx, entries[:n]); err != nil {
		return 0, err
	}
	return n, fmt.Errorf("%w: batch 2 rejected", ErrIndexWrite)
}

// failingIndex fails every call.
type failingIndex struct{ err error }

func (f failingIndex) Upsert(context.Context, []VectorEntry) (int, error) { return 0, f.err }
func (f failingIndex) Query(context.Context, []float32, int, string) ([]VectorMatch, error) {
	return nil, f.err
}
func (f failingIndex) Delete(context.Context, []string) error { return f.err }

// fakeModel records the last request and answers with a fixed reply.
type fakeModel struct {
	mu       sync.Mutex
	reply    string
	empty    bool
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
	calls    int
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	f.options = llms.CallOptions{}
	for _, opt := range opts {
		opt(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func (f *fakeModel) lastMessages() []llms.MessageContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages
}
