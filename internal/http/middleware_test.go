package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-cache-proxy/internal/observability"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	got := w.Header().Get(correlationHeader)
	if got == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != got {
		t.Errorf("context correlation id = %q, header = %q", seen, got)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("handled")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(correlationHeader, "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(correlationHeader); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("request logger missing correlation_id: %+v", entries)
	}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	env := newTestEnv(t)
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/weather/current/{city}", "2xx")
	before := testutil.ToFloat64(counter)

	env.do(t, http.MethodGet, "/weather/current/Paris")
	env.do(t, http.MethodGet, "/weather/current/London")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests counted under route template = %v, want 2", got)
	}
}

func TestMiddleware_MetricsRecordsNonOK(t *testing.T) {
	env := newTestEnv(t)
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/weather/forecast/{city}", "4xx")
	before := testutil.ToFloat64(counter)

	if w := env.do(t, http.MethodGet, "/weather/forecast/Paris?cnt=99"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("4xx requests = %v, want 1", got)
	}
}

func TestMiddleware_InFlightTracked(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
		close(done)
	}()
	<-started
	if InFlightCount() < 1 {
		t.Errorf("InFlightCount() = %d during request, want >= 1", InFlightCount())
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

func TestMiddleware_MetricsRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok {
		t.Fatal("request context has no deadline")
	}
	if time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline %v is further than the timeout", deadline)
	}
}
