package handlers

import (
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/recording-processor/internal/llm"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

const qaMaxTokens = 300

// QARequest is the body of an AI Q&A request
type QARequest struct {
	Transcript string `json:"transcript"`
	Question   string `json:"question"`
	Plan       string `json:"plan"`
}

// QAHandler answers questions about a recording's transcript
type QAHandler struct {
	client llm.Client
}

// NewQAHandler creates a new Q&A handler
func NewQAHandler(client llm.Client) *QAHandler {
	return &QAHandler{client: client}
}

// Handle processes the Q&A request
func (h *QAHandler) Handle(c *fiber.Ctx) error {
	var req QARequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": fiber.StatusBadRequest,
			"error":  "Invalid request body.",
		})
	}

	log.Printf("AI Q&A request: transcript %d chars, question %t, plan %q",
		len(req.Transcript), req.Question != "", req.Plan)

	if types.Plan(req.Plan) != types.PlanPro {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status": fiber.StatusForbidden,
			"error":  "AI Q&A is only available for PRO users.",
		})
	}
	if strings.TrimSpace(req.Transcript) == "" || strings.TrimSpace(req.Question) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": fiber.StatusBadRequest,
			"error":  "Missing transcript or question.",
		})
	}

	resp, err := h.client.Generate(c.UserContext(), llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: qaPrompt(req.Transcript, req.Question)}},
		MaxTokens: qaMaxTokens,
	})
	if err != nil {
		log.Printf("AI Q&A failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": fiber.StatusInternalServerError,
			"error":  "AI Q&A failed.",
		})
	}

	return c.JSON(fiber.Map{
		"status": fiber.StatusOK,
		"answer": resp.Content,
	})
}

func qaPrompt(transcript, question string) string {
	return fmt.Sprintf(`You are an assistant for video content. Here is the transcript of the video:
---
%s
---
Answer the following question based only on the transcript above:
Q: %s
A:`, transcript, question)
}
