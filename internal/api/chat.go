package api

import (
	"net/http"

	"gwi.com/persona-chat/internal/store"
)

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
	BotID   string `json:"botId" validate:"required"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	turn, err := h.chat.SendMessage(r.Context(), UserIDFromContext(r.Context()), req.BotID, req.Message)
	if err != nil {
		h.writeServiceError(w, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("botId")
	if botID == "" {
		writeError(w, http.StatusBadRequest, "botId is required")
		return
	}
	messages, err := h.chat.History(r.Context(), UserIDFromContext(r.Context()), botID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get chat history")
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *APIHandler) ClearChatHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("botId")
	if botID == "" {
		writeError(w, http.StatusBadRequest, "botId is required")
		return
	}
	deleted, err := h.chat.ClearHistory(r.Context(), UserIDFromContext(r.Context()), botID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to clear chat history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Chat history cleared successfully",
		"deletedCount": deleted,
	})
}
