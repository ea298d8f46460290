package observability

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.IncMessage("upload", "upserted")
	m.ObserveStep("extract", nil, time.Second)
	m.AddPoints(1)
	m.AddSkipped(1)
	m.InflightInc()
	m.InflightDec()
	m.SetSubscriptionActive("amqp", true)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}
}

func TestMetricsPrometheusText(t *testing.T) {
	m := New()
	m.IncMessage("upload", "upserted")
	m.IncMessage("upload", "upserted")
	m.IncMessage("forward", "forwarded")
	m.ObserveStep("upsert", errors.New("boom"), 300*time.Millisecond)
	m.AddPoints(5)
	m.AddSkipped(2)
	m.SetSubscriptionActive("amqp", true)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`vdp_messages_total{path="upload",outcome="upserted"} 2.000000`,
		`vdp_messages_total{path="forward",outcome="forwarded"} 1.000000`,
		`vdp_step_duration_seconds_bucket{step="upsert",status="error",le="0.5"} 1`,
		`vdp_step_duration_seconds_bucket{step="upsert",status="error",le="0.25"} 0`,
		`vdp_points_upserted_total 5.000000`,
		`vdp_chunks_skipped_total 2.000000`,
		`vdp_subscription_active{driver="amqp"} 1.000000`,
		"# TYPE vdp_inflight_messages gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if got := m.pointsUpserted.Value(); got != 5 {
		t.Fatalf("points: want=5 got=%v", got)
	}
}

func TestMetricsHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	New().WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type: got=%q", ct)
	}

	rec = httptest.NewRecorder()
	var nilMetrics *Metrics
	nilMetrics.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil status: want=%d got=%d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"path"}, []string{`a"b`})
	if got != `{path="a\"b"}` {
		t.Fatalf("labelString: got=%q", got)
	}
	if got := withLe("", "+Inf"); got != `{le="+Inf"}` {
		t.Fatalf("withLe: got=%q", got)
	}
}
