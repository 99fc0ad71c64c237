package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gwi.com/persona-chat/internal/auth"
	"gwi.com/persona-chat/internal/core"
	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

// UserStore is the user persistence the API needs.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Users          UserStore
	Bots           *core.BotService
	Chat           *core.ChatService
	Tokens         *auth.TokenIssuer
	UploadDir      string
	MaxUploadBytes int64
	Log            *logger.Logger
}

type APIHandler struct {
	users     UserStore
	bots      *core.BotService
	chat      *core.ChatService
	tokens    *auth.TokenIssuer
	uploadDir string
	maxUpload int64
	validate  *validator.Validate
	log       *logger.Logger
}

func NewAPIHandler(d Deps) *APIHandler {
	validate := validator.New()
	// report json field names in validation errors
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = core.DefaultMaxUploadBytes
	}
	return &APIHandler{
		users:     d.Users,
		bots:      d.Bots,
		chat:      d.Chat,
		tokens:    d.Tokens,
		uploadDir: d.UploadDir,
		maxUpload: maxUpload,
		validate:  validate,
		log:       d.Log.With("component", "api"),
	}
}

type ctxKey int

const userIDKey ctxKey = iota

// UserIDFromContext returns the authenticated principal set by JWTAuthMiddleware.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		userID, err := h.tokens.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.users.GetUserByID(r.Context(), userID)
		if err != nil {
			h.log.Error("failed to load token user", "user_id", userID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Ping(r.Context()); err != nil {
		h.log.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type AuthResponse struct {
	User  *store.User `json:"user"`
	Token string      `json:"token"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error("failed to hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Name, req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "User with this email already exists")
			return
		}
		h.log.Error("failed to create user", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.issueToken(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.log.Error("failed to load user", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.issueToken(w, http.StatusOK, user)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), UserIDFromContext(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*store.User{"user": user})
}

func (h *APIHandler) issueToken(w http.ResponseWriter, status int, user *store.User) {
	token, err := h.tokens.GenerateJWT(user.ID)
	if err != nil {
		h.log.Error("failed to generate token", "user_id", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, status, AuthResponse{User: user, Token: token})
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the request is unusable.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param()+" characters long")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// writeServiceError maps core and store errors onto HTTP responses.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Bot not found")
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrUnsupportedFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Request timed out")
	default:
		h.log.Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
