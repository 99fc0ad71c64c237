package core

import (
	"fmt"

	"gwi.com/persona-chat/internal/store"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PromptMessage struct {
	Role    Role
	Content string
}

// SystemPrompt renders a bot persona, with the retrieved context block
// appended verbatim.
func SystemPrompt(bot *store.Bot, retrieved string) string {
	return fmt.Sprintf("You are %s. %s\n\n%s%s", bot.Name, bot.Description, bot.InitialContext, retrieved)
}

// AssembleMessages builds the completion request for one turn: the persona
// system message, the prior history oldest first, then the current message.
// When budget is positive the oldest history entries are dropped until the
// remaining history content fits in budget characters.
func AssembleMessages(bot *store.Bot, history []store.ChatMessage, retrieved, current string, budget int) []PromptMessage {
	history = trimHistory(history, budget)

	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: RoleSystem, Content: SystemPrompt(bot, retrieved)})
	for _, m := range history {
		role := RoleAssistant
		if m.IsUser {
			role = RoleUser
		}
		messages = append(messages, PromptMessage{Role: role, Content: m.Message})
	}
	return append(messages, PromptMessage{Role: RoleUser, Content: current})
}

func trimHistory(history []store.ChatMessage, budget int) []store.ChatMessage {
	if budget <= 0 {
		return history
	}
	total := 0
	start := len(history)
	for start > 0 {
		n := len([]rune(history[start-1].Message))
		if total+n > budget {
			break
		}
		total += n
		start--
	}
	return history[start:]
}
