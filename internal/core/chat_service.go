package core

import (
	"context"
	"fmt"
	"strings"

	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

// ChatStore is the persistence the chat orchestrator needs.
type ChatStore interface {
	GetBotByIDAndOwner(ctx context.Context, botID, ownerID string) (*store.Bot, error)
	CreateChatMessage(ctx context.Context, msg *store.ChatMessage) error
	ListChatMessages(ctx context.Context, userID, botID string) ([]store.ChatMessage, error)
	DeleteChatMessages(ctx context.Context, userID, botID string) (int64, error)
}

// Retriever returns a context block for a query, or "".
type Retriever interface {
	Retrieve(ctx context.Context, query, botID string) string
}

type TurnResult struct {
	UserMessage *store.ChatMessage `json:"userMessage"`
	BotMessage  *store.ChatMessage `json:"botMessage"`
}

type ChatService struct {
	store         ChatStore
	retriever     Retriever
	completer     Completer
	locks         *ConversationLocks
	historyBudget int
	log           *logger.Logger
}

func NewChatService(db ChatStore, retriever Retriever, completer Completer, historyBudget int, log *logger.Logger) *ChatService {
	return &ChatService{
		store:         db,
		retriever:     retriever,
		completer:     completer,
		locks:         NewConversationLocks(),
		historyBudget: historyBudget,
		log:           log.With("service", "ChatService"),
	}
}

// SendMessage runs one conversation turn and returns both persisted messages.
// Turns for the same user and bot run one at a time, so each turn sees every
// message committed by the turns before it.
func (s *ChatService) SendMessage(ctx context.Context, userID, botID, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if botID == "" {
		return nil, fmt.Errorf("%w: botId is required", ErrValidation)
	}

	release, err := s.locks.Acquire(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	defer release()

	bot, err := s.ownedBot(ctx, userID, botID)
	if err != nil {
		return nil, err
	}

	userMsg := &store.ChatMessage{UserID: userID, BotID: botID, Message: text, IsUser: true}
	if err := s.store.CreateChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("%w: failed to store user message: %v", ErrInternal, err)
	}

	var retrieved string
	if bot.HasDocuments() {
		retrieved = s.retriever.Retrieve(ctx, text, botID)
	}

	history, err := s.store.ListChatMessages(ctx, userID, botID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load chat history: %v", ErrInternal, err)
	}
	history = withoutMessage(history, userMsg.ID)

	messages := AssembleMessages(bot, history, retrieved, text, s.historyBudget)
	reply := s.completer.Complete(ctx, messages)

	botMsg := &store.ChatMessage{UserID: userID, BotID: botID, Message: reply, IsUser: false}
	if err := s.store.CreateChatMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("%w: failed to store bot message: %v", ErrInternal, err)
	}

	s.log.Debug("chat turn completed", "user_id", userID, "bot_id", botID, "history", len(history), "context", retrieved != "")
	return &TurnResult{UserMessage: userMsg, BotMessage: botMsg}, nil
}

// History returns the conversation oldest first.
func (s *ChatService) History(ctx context.Context, userID, botID string) ([]store.ChatMessage, error) {
	if _, err := s.ownedBot(ctx, userID, botID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListChatMessages(ctx, userID, botID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load chat history: %v", ErrInternal, err)
	}
	return messages, nil
}

// ClearHistory deletes the conversation and reports how many messages went.
func (s *ChatService) ClearHistory(ctx context.Context, userID, botID string) (int64, error) {
	release, err := s.locks.Acquire(ctx, userID, botID)
	if err != nil {
		return 0, err
	}
	defer release()

	if _, err := s.ownedBot(ctx, userID, botID); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteChatMessages(ctx, userID, botID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to clear chat history: %v", ErrInternal, err)
	}
	s.log.Info("chat history cleared", "user_id", userID, "bot_id", botID, "deleted", n)
	return n, nil
}

func (s *ChatService) ownedBot(ctx context.Context, userID, botID string) (*store.Bot, error) {
	if botID == "" {
		return nil, fmt.Errorf("%w: botId is required", ErrValidation)
	}
	bot, err := s.store.GetBotByIDAndOwner(ctx, botID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load bot: %v", ErrInternal, err)
	}
	if bot == nil {
		return nil, fmt.Errorf("%w: bot %s", ErrNotFound, botID)
	}
	return bot, nil
}

func withoutMessage(history []store.ChatMessage, id string) []store.ChatMessage {
	out := history[:0:0]
	for _, m := range history {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
