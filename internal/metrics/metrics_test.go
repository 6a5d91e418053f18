package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	m.RecordPushed("mood")
	m.RecordPushed("mood")
	m.NoData("mood")
	m.Evaluation("mood_annotation_expected", "action", time.Millisecond)
	m.ActionPublished("EXPLAIN_MOOD_CHANGES")
	m.SetStreams(3)
	m.SetSituations(2)

	if got := testutil.ToFloat64(m.recordsPushed.WithLabelValues("mood")); got != 2 {
		t.Fatalf("records pushed = %v", got)
	}
	if got := testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("mood_annotation_expected", "action")); got != 1 {
		t.Fatalf("evaluations = %v", got)
	}
	if got := testutil.ToFloat64(m.registeredStreams); got != 3 {
		t.Fatalf("streams = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPushed("mood")
	m.NoData("mood")
	m.Evaluation("s", "none", 0)
	m.ActionPublished("a")
	m.SetStreams(1)
	m.SetSituations(1)
	if m.Registry() != nil {
		t.Fatal("nil metrics has a registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	m.ActionPublished("ASK_ABOUT_PLACE")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `minuku_situation_actions_published_total{action="ASK_ABOUT_PLACE"} 1`) {
		t.Fatalf("metrics output missing action counter:\n%s", body)
	}
}
