package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewarePreservesFlusher(t *testing.T) {
	m := NewMetrics()

	var sawFlusher bool
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawFlusher = w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
	if !sawFlusher {
		t.Fatal("http.Flusher must stay visible through the metrics middleware")
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `storewatch_http_requests_total`) {
		t.Fatalf("request counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, `code="418"`) {
		t.Fatalf("recorded status code missing from exposition:\n%s", body)
	}
}
