package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCycles(t *testing.T) {
	m := NewUploadMetrics()
	m.CycleStarted()
	m.CycleFinished("succeeded", "0", 150*time.Millisecond)
	m.TriggerRejected("fab", "in_progress")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `screenshotsender_upload_cycles_total{code="0",outcome="succeeded"} 1`)
	assert.Contains(t, text, `screenshotsender_upload_in_flight 0`)
	assert.Contains(t, text, `screenshotsender_upload_rejected_triggers_total{reason="in_progress",source="fab"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *UploadMetrics
	m.CycleStarted()
	m.CycleFinished("failed", "-2", time.Second)
	m.TriggerRejected("api", "rate_limited")
	m.APIRequest("/api/health", "200")
}
