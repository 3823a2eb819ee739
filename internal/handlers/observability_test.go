package handlers

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
)

func TestLogBufferKeepsTail(t *testing.T) {
	lb := NewLogBuffer()
	for i := 0; i < logBufferLines+5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}

	logs := lb.GetLogs()
	if len(logs) != logBufferLines {
		t.Fatalf("len = %d", len(logs))
	}
	if logs[0] != "line 5\n" || logs[len(logs)-1] != fmt.Sprintf("line %d\n", logBufferLines+4) {
		t.Fatalf("first/last = %q / %q", logs[0], logs[len(logs)-1])
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	app := fiber.New()
	app.Use(MetricsMiddleware(m))
	app.Get("/sessions/:filename", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).SendString("nope")
	})

	for _, name := range []string{"a.webm", "b.webm"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/sessions/"+name, nil))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
	}

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/sessions/:filename", "404"))
	if got != 2 {
		t.Fatalf("requests metric = %v", got)
	}
}
