package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"imagegate/pkg/logging/logging"
)

func TestTimeoutPassesThrough(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr.Body.String() != "done" || rr.Header().Get("X-Test") != "1" {
		t.Fatalf("unexpected response %q %v", rr.Body.String(), rr.Header())
	}
}

func TestTimeoutReturnsGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		<-r.Context().Done()
		<-release
		_, _ = w.Write([]byte("late"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	close(release)
	<-finished

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"gateway_timeout"}` {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestRecovererReturns500(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), zaptest.NewLogger(t)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"internal_server_error"}` {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
}

func TestRecovererReraisesAbort(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/a/b.png", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), zaptest.NewLogger(t)))
	h.ServeHTTP(httptest.NewRecorder(), req)
	t.Fatalf("expected panic")
}

func TestLoggingContextAttachesLogger(t *testing.T) {
	base := zaptest.NewLogger(t)
	var got bool
	h := LoggingContext(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.L(r.Context()) != logging.DefaultLogger()
	}))

	req := httptest.NewRequest(http.MethodGet, "/a/b.png?signature=abc", nil)
	req.Header.Set("Origin", "https://app.example")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !got {
		t.Fatalf("expected request-scoped logger in context")
	}
}
