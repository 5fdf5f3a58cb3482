package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/files/:name", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/broken", func(c echo.Context) error {
		return errors.New("boom")
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/files/:name", "200"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/report.pdf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/files/:name", "200"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by one, got %v -> %v", before, after)
	}

	before = testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/broken", "500"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/broken", "500")); got != before+1 {
		t.Fatalf("expected 500 to be recorded, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordLLMCall("openai", "ok", 120*time.Millisecond)
	RecordProcessingJob("ocr", true, 2*time.Second)
	RecordWebhookEvent("line", "dispatched")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"docdesk_llm_calls_total",
		"docdesk_processing_jobs_total",
		"docdesk_webhook_events_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
