package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/service"
	"github.com/katakuxiko/docchat/internal/util"
)

// Handler хранит зависимости для обработчиков
type Handler struct {
	rag *service.RAGService
	log *slog.Logger
}

func NewHandler(rag *service.RAGService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{rag: rag, log: log}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// ListModels возвращает список моделей провайдера LLM
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, ok, err := h.rag.ListModels(c.UserContext())
	if !ok {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "provider cannot list models"})
	}
	if err != nil {
		h.log.Warn("list models", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"models": models})
}

func (h *Handler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": h.rag.Sessions().Len(),
		"counters": h.rag.Metrics().Snapshot(),
	})
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	s := h.rag.Sessions().Create()
	h.log.Info("session created", "session", s.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": s.ID})
}

func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.rag.Sessions().Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) History(c *fiber.Ctx) error {
	sess, err := h.rag.Sessions().Get(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	history := sess.History()
	if history == nil {
		history = model.History{}
	}
	return c.JSON(fiber.Map{"history": history})
}

// Process загружает PDF (поле формы "files", либо "file" для одного файла)
// и пересобирает индекс сессии
func (h *Handler) Process(c *fiber.Ctx) error {
	sess, err := h.rag.Sessions().Get(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "multipart form with field \"files\" is required"})
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}

	docs := make([]model.Document, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			h.log.Error("read upload", "file", fh.Filename, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
		}
		docs = append(docs, model.Document{ID: util.Timestamped(fh.Filename), Name: fh.Filename, Data: data})
	}

	res, err := h.rag.Process(c.UserContext(), sess, docs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) Ask(c *fiber.Ctx) error {
	sess, err := h.rag.Sessions().Get(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	var req model.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request, expected JSON: {\"query\":\"...\"}"})
	}

	res, err := h.rag.Ask(c.UserContext(), sess, req.Query)
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Debug("ask", "session", sess.ID, "query", util.TruncateRunes(req.Query, 80))
	return c.JSON(res)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		parseErr *model.DocumentParseError
		cfgErr   *model.ConfigError
		dimErr   *model.EmbeddingDimensionError
		embErr   *model.EmbeddingServiceError
		genErr   *model.GenerationError
	)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrNotProcessed):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrNoDocuments),
		errors.Is(err, model.ErrNoText),
		errors.Is(err, model.ErrEmptyQuery),
		errors.As(err, &parseErr),
		errors.As(err, &cfgErr):
		return fiber.StatusBadRequest
	case errors.As(err, &dimErr),
		errors.As(err, &embErr),
		errors.As(err, &genErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
