package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gwi.com/persona-chat/internal/logger"
)

const (
	defaultChatModelName = "llama-3.3-70b-versatile"
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"

	FallbackUnavailable = "I'm sorry, I'm having trouble responding right now. Please try again."
	FallbackEmpty       = "I'm sorry, I couldn't generate a response."
)

// Completer produces the bot reply for an assembled conversation. It always
// returns some text.
type Completer interface {
	Complete(ctx context.Context, messages []PromptMessage) string
}

type ModelParams struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Params  ModelParams
	Timeout time.Duration
}

// LLMService talks to an OpenAI-compatible chat completion endpoint.
type LLMService struct {
	model   llms.Model
	params  ModelParams
	timeout time.Duration
	log     *logger.Logger
}

var _ Completer = (*LLMService)(nil)

func NewLLMService(cfg LLMConfig, log *logger.Logger) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GROQ_API_KEY", ErrConfigMissing)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGroqBaseURL
	}
	if cfg.Params.Model == "" {
		cfg.Params.Model = defaultChatModelName
	}
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Params.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	return NewLLMServiceWithModel(model, cfg.Params, cfg.Timeout, log), nil
}

// NewLLMServiceWithModel wraps an existing langchaingo model.
func NewLLMServiceWithModel(model llms.Model, params ModelParams, timeout time.Duration, log *logger.Logger) *LLMService {
	if params.MaxTokens <= 0 {
		params.MaxTokens = 500
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMService{
		model:   model,
		params:  params,
		timeout: timeout,
		log:     log.With("service", "LLMService"),
	}
}

// Complete never returns an error. Service failures and empty answers are
// replaced with fixed fallback replies.
func (s *LLMService) Complete(ctx context.Context, messages []PromptMessage) string {
	if s.model == nil {
		s.log.Warn("completion client not configured")
		return FallbackUnavailable
	}
	text, err := s.generate(ctx, messages)
	if err != nil {
		s.log.Error("completion failed", "err", err)
		return FallbackUnavailable
	}
	if strings.TrimSpace(text) == "" {
		s.log.Warn("completion returned no content")
		return FallbackEmpty
	}
	return text
}

func (s *LLMService) generate(ctx context.Context, messages []PromptMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{
		llms.WithMaxTokens(s.params.MaxTokens),
		llms.WithTemperature(s.params.Temperature),
	}
	if s.params.Model != "" {
		opts = append(opts, llms.WithModel(s.params.Model))
	}

	resp, err := s.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionService, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
