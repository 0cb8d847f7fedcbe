package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satriahrh/lexvoice/usecase"
)

var _ usecase.MetricsRecorder = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read exposition: %v", err)
	}
	return string(body)
}

func TestRecorder(t *testing.T) {
	m := New("")

	m.Turn("rest", "ok")
	m.Turn("rest", "ok")
	m.Turn("websocket", "transcription_error")
	m.GenerationRetry()
	m.SynthesisFailure()
	m.ObserveStage("generation", 1500*time.Millisecond)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	body := scrape(t, m)
	expected := []string{
		`lexvoice_turns_total{outcome="ok",transport="rest"} 2`,
		`lexvoice_turns_total{outcome="transcription_error",transport="websocket"} 1`,
		"lexvoice_generation_retries_total 1",
		"lexvoice_synthesis_failures_total 1",
		"lexvoice_streaming_sessions_active 1",
		`lexvoice_stage_duration_seconds_count{stage="generation"} 1`,
		`lexvoice_stage_duration_seconds_bucket{stage="generation",le="2"} 1`,
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}

func TestNamespace(t *testing.T) {
	m := New("custom")
	m.Turn("rest", "ok")

	body := scrape(t, m)
	if !strings.Contains(body, `custom_turns_total{outcome="ok",transport="rest"} 1`) {
		t.Errorf("Expected custom namespace in exposition, got:\n%s", body)
	}
	if strings.Contains(body, "lexvoice_") {
		t.Errorf("Expected no default namespace when a custom one is given")
	}
}
