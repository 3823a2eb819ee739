package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/recording-processor/internal/session"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// RecordingStore reads persisted recordings
type RecordingStore interface {
	GetRecording(filename string) (storage.Recording, error)
	ListRecordings(state types.State, limit int) ([]storage.Recording, error)
}

// SessionsHandler exposes recording state to operators
type SessionsHandler struct {
	registry *session.Registry
	store    RecordingStore
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(registry *session.Registry, store RecordingStore) *SessionsHandler {
	return &SessionsHandler{
		registry: registry,
		store:    store,
	}
}

// List returns persisted recordings, optionally filtered by state
func (h *SessionsHandler) List(c *fiber.Ctx) error {
	state := types.State(c.Query("state"))
	limit := c.QueryInt("limit", 50)

	recordings, err := h.store.ListRecordings(state, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

// Get returns one persisted recording
func (h *SessionsHandler) Get(c *fiber.Ctx) error {
	filename := c.Params("filename")
	if err := storage.ValidateFilename(filename); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rec, err := h.store.GetRecording(filename)
	if errors.Is(err, storage.ErrRecordingNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recording not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rec)
}

// Active returns the sessions currently held in memory
func (h *SessionsHandler) Active(c *fiber.Ctx) error {
	infos := h.registry.Snapshot()
	return c.JSON(fiber.Map{
		"sessions": infos,
		"count":    len(infos),
	})
}
