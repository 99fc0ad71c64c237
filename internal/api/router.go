package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds a whole request, including a chat turn's retrieval
// and completion calls.
const requestTimeout = 2 * time.Minute

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(apiHandler.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(requestTimeout))

	if apiHandler.uploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(apiHandler.uploadDir)))
		r.Handle("/uploads/*", fs)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/auth/signup", apiHandler.SignupHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/me", apiHandler.MeHandler)

			r.Get("/bots", apiHandler.ListBotsHandler)
			r.Post("/bots", apiHandler.CreateBotHandler)
			r.Get("/bots/{botID}", apiHandler.GetBotHandler)
			r.Put("/bots/{botID}", apiHandler.UpdateBotHandler)
			r.Delete("/bots/{botID}", apiHandler.DeleteBotHandler)
			r.Post("/bots/{botID}/files", apiHandler.UploadFileHandler)

			r.Post("/chat", apiHandler.SendMessageHandler)
			r.Get("/chat", apiHandler.ChatHistoryHandler)
			r.Delete("/chat", apiHandler.ClearChatHandler)
		})
	})

	return r
}
