package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Delivery("displayed")
	m.SetPending(3)
	m.Notification("log", nil)
	m.Dismissal(errors.New("x"))
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have nil registry")
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Delivery("displayed")
	m.Delivery("displayed")
	m.Delivery("snoozed")
	m.Dismissal(nil)
	m.Dismissal(errors.New("boom"))
	m.SetWatermark(1234.5)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("displayed")); got != 2 {
		t.Fatalf("displayed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dismissals.WithLabelValues("error")); got != 1 {
		t.Fatalf("dismissal errors = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pushrelay_delivery_watermark_seconds 1234.5") {
		t.Fatalf("watermark gauge missing from exposition:\n%s", body)
	}
}
