package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResultLabel(t *testing.T) {
	if ResultLabel(true) != "success" || ResultLabel(false) != "failure" {
		t.Error("unexpected result labels")
	}
}

func TestServerExposesMetrics(t *testing.T) {
	ActionsDispatchedTotal.WithLabelValues("webhook", ResultSuccess).Inc()

	srv := NewServer(":0", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "callwatch_actions_dispatched_total") {
		t.Error("metrics output should include callwatch_actions_dispatched_total")
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(LogsEvaluatedTotal)
	LogsEvaluatedTotal.Inc()
	if got := testutil.ToFloat64(LogsEvaluatedTotal); got != before+1 {
		t.Errorf("logs evaluated = %v, want %v", got, before+1)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "callwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServerFor("", reg, nil).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "callwatch_test_total 1") {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
