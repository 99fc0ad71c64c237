package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gwi.com/persona-chat/internal/core"
	"gwi.com/persona-chat/internal/store"
)

type CreateBotRequest struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description" validate:"required"`
	InitialContext string `json:"initialContext" validate:"required"`
}

type UpdateBotRequest struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	InitialContext string               `json:"initialContext"`
	ContextFiles   *[]store.ContextFile `json:"contextFiles"`
}

func (h *APIHandler) ListBotsHandler(w http.ResponseWriter, r *http.Request) {
	bots, err := h.bots.List(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch bots")
		return
	}
	if bots == nil {
		bots = []store.Bot{}
	}
	writeJSON(w, http.StatusOK, bots)
}

func (h *APIHandler) CreateBotHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if !h.decode(w, r, &req) {
		return
	}
	bot, err := h.bots.Create(r.Context(), UserIDFromContext(r.Context()), core.BotInput{
		Name:           req.Name,
		Description:    req.Description,
		InitialContext: req.InitialContext,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to create bot")
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (h *APIHandler) GetBotHandler(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "botID"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch bot")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *APIHandler) UpdateBotHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateBotRequest
	if !h.decode(w, r, &req) {
		return
	}
	bot, err := h.bots.Update(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "botID"), core.BotUpdate{
		Name:           req.Name,
		Description:    req.Description,
		InitialContext: req.InitialContext,
		ContextFiles:   req.ContextFiles,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to update bot")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *APIHandler) DeleteBotHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.bots.Delete(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "botID")); err != nil {
		h.writeServiceError(w, err, "Failed to delete bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bot deleted successfully"})
}

// multipartOverhead leaves room for form boundaries and headers on top of the
// file size limit.
const multipartOverhead = 1 << 20

func (h *APIHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File size exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		writeError(w, http.StatusBadRequest, "File size exceeds the upload limit")
		return
	}

	stored, err := h.bots.AttachFile(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "botID"), core.Upload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to upload file")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}
