package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/katakuxiko/docchat/internal/service"
)

func RegisterRoutes(app *fiber.App, rag *service.RAGService, log *slog.Logger) {
	h := NewHandler(rag, log)

	app.Get("/health", h.Health)
	app.Get("/models", h.ListModels)
	app.Get("/metrics", h.Metrics)

	app.Post("/sessions", h.CreateSession)
	app.Get("/sessions/:id/history", h.History)
	app.Post("/sessions/:id/process", h.Process)
	app.Post("/sessions/:id/ask", h.Ask)
	app.Delete("/sessions/:id", h.DeleteSession)
}
