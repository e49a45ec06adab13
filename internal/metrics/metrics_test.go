package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.ObserveCalculation("ok")
	m.ObserveCalculation("ok")
	m.ObserveCalculation("invalid_dimensions")
	m.ObserveDocumentCreated("invoice")
	m.ObserveEmail("fallback")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Calculations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calculations.WithLabelValues("invalid_dimensions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsCreated.WithLabelValues("invoice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Emails.WithLabelValues("fallback")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/calculate", http.MethodPost, "200", 20*time.Millisecond)
	m.ObserveDocumentCreated("estimate")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `levelworks_documents_created_total{kind="estimate"} 1`), body)
	assert.True(t, strings.Contains(body, "levelworks_http_request_duration_seconds_bucket"), body)
}
