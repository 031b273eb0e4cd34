package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_nil_receiver_is_noop(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.ObserveStream(OutcomeCompleted, 10)
	m.IncAdmissionRejected("user")
	m.IncCacheLookup("etag", true)
	m.AddCacheEvictions("etag", "capacity", 3)
	m.SetActiveStreams(1)
}

func TestMetrics_ObserveStream(t *testing.T) {
	m := New()
	m.ObserveStream(OutcomeCompleted, 100)
	m.ObserveStream(OutcomeCancelled, 40)
	m.ObserveStream(OutcomeCompleted, 0)

	if got := testutil.ToFloat64(m.streamsTotal.WithLabelValues(OutcomeCompleted)); got != 2 {
		t.Errorf("completed streams: got %v want 2", got)
	}
	if got := testutil.ToFloat64(m.bytesStreamedTotal); got != 140 {
		t.Errorf("bytes streamed: got %v want 140", got)
	}
}

func TestRequestMiddleware_counts_errors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}
	}))

	for _, p := range []string{"/ok", "/bad", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(m.requestsTotal); got != 3 {
		t.Errorf("requests: got %v want 3", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal); got != 1 {
		t.Errorf("errors: got %v want 1", got)
	}
}

func TestHandler_refreshes_gauges(t *testing.T) {
	m := New()
	called := false
	srv := httptest.NewServer(m.Handler(func() {
		called = true
		m.SetActiveStreams(7)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !called {
		t.Error("updateGauges should run before scrape")
	}
	if !strings.Contains(string(body), "audio_active_streams 7") {
		t.Errorf("expected gauge in exposition:\n%s", body)
	}
}
