package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
	"github.com/codebuildervaibhav/recording-processor/internal/pipeline"
	"github.com/codebuildervaibhav/recording-processor/internal/session"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// Client events
const (
	EventVideoChunks  = "video-chunks"
	EventProcessVideo = "process-video"
)

// Processor starts the pipeline for a recording
type Processor interface {
	Process(req pipeline.Request) error
}

// streamEvent is a text frame sent by the recorder
type streamEvent struct {
	Event    string `json:"event"`
	Filename string `json:"filename"`
	// Chunks is a base64 encoded fragment
	Chunks string `json:"chunks,omitempty"`
	UserID string `json:"userId,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

type streamReply struct {
	Event    string `json:"event"`
	Filename string `json:"filename,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// conn is the part of a WebSocket connection the handler uses
type conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// StreamHandler handles WebSocket recording streams
type StreamHandler struct {
	registry  *session.Registry
	processor Processor
	metrics   *metrics.Metrics
	readLimit int64
}

// NewStreamHandler creates a new stream handler. m may be nil.
func NewStreamHandler(registry *session.Registry, processor Processor, m *metrics.Metrics, readLimit int64) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		processor: processor,
		metrics:   m,
		readLimit: readLimit,
	}
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	if h.readLimit > 0 {
		c.SetReadLimit(h.readLimit)
	}
	h.serve(c, uuid.New().String())
}

// serve reads frames until the connection closes. Closing the connection
// leaves sessions and running pipelines alone.
func (h *StreamHandler) serve(c conn, connID string) {
	log.Printf("WebSocket connection established: %s", connID)
	defer log.Printf("%s disconnected", connID)

	// binary frames go to the recording named by the last text event
	var current string

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error on %s: %v", connID, err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			var ev streamEvent
			if err := json.Unmarshal(message, &ev); err != nil {
				h.reject(c, "", "bad_event", "malformed event")
				continue
			}
			if err := storage.ValidateFilename(ev.Filename); err != nil {
				h.reject(c, ev.Filename, "bad_filename", err.Error())
				continue
			}
			current = ev.Filename

			switch ev.Event {
			case EventVideoChunks:
				if ev.Chunks == "" {
					continue
				}
				data, err := base64.StdEncoding.DecodeString(ev.Chunks)
				if err != nil {
					h.reject(c, ev.Filename, "bad_encoding", "chunks must be base64")
					continue
				}
				h.appendChunk(c, connID, ev.Filename, data)
			case EventProcessVideo:
				h.process(c, ev)
			default:
				h.reject(c, ev.Filename, "bad_event", "unknown event "+ev.Event)
			}

		case websocket.BinaryMessage:
			if current == "" {
				h.reject(c, "", "no_filename", "binary chunk before any filename")
				continue
			}
			h.appendChunk(c, connID, current, message)
		}
	}
}

func (h *StreamHandler) appendChunk(c conn, connID, filename string, data []byte) {
	created, err := h.registry.AppendChunk(connID, filename, data)
	if err != nil {
		log.Printf("Chunk for %s rejected: %v", filename, err)
		h.reject(c, filename, "session_closed", err.Error())
		return
	}
	if created {
		log.Printf("Session started for %s on %s", filename, connID)
	}
	if h.metrics != nil {
		h.metrics.RecordChunk(len(data), created)
		h.metrics.SetActiveSessions(h.registry.Len())
	}
}

func (h *StreamHandler) process(c conn, ev streamEvent) {
	log.Printf("Processing video %s for user %s", ev.Filename, ev.UserID)
	if ev.UserID == "" {
		h.reply(c, streamReply{Event: "error", Filename: ev.Filename, Error: "userId is required"})
		return
	}

	err := h.processor.Process(pipeline.Request{
		Filename: ev.Filename,
		UserID:   ev.UserID,
		Plan:     types.ParsePlan(ev.Plan),
	})
	if err != nil {
		status := "rejected"
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			status = "not_found"
		case errors.Is(err, session.ErrLocalWriteFailed):
			status = string(types.ReasonLocalWriteFailed)
		}
		h.reply(c, streamReply{Event: "error", Filename: ev.Filename, Status: status, Error: err.Error()})
		return
	}
	h.reply(c, streamReply{Event: "ack", Filename: ev.Filename, Status: "processing"})
}

func (h *StreamHandler) reject(c conn, filename, reason, msg string) {
	if h.metrics != nil {
		h.metrics.RecordChunkRejected(reason)
	}
	h.reply(c, streamReply{Event: "error", Filename: filename, Status: reason, Error: msg})
}

func (h *StreamHandler) reply(c conn, r streamReply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Printf("WebSocket write error: %v", err)
	}
}
