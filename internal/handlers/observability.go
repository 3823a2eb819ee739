package handlers

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
)

const logBufferLines = 1000

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

// NewLogBuffer creates an empty log buffer
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, logBufferLines)}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > logBufferLines {
		lb.lines = lb.lines[len(lb.lines)-logBufferLines:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// Handle serves the captured log tail
func (lb *LogBuffer) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"logs": lb.GetLogs(),
	})
}

// MetricsMiddleware records count and latency of every HTTP request, labelled
// with the matched route rather than the raw path
func MetricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.RecordHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start).Seconds())
		return err
	}
}
