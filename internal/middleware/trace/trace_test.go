package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "finreport/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	m := NewMiddleware(applog.Discard(), func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/x", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if got := rr.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}

	metrics := m.Metrics()
	if metrics.TotalRequests != 1 || metrics.FailedRequests != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestMiddlewareRequestIDPropagation(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantKeep bool
	}{
		{name: "valid id kept", inbound: "abc-123_XYZ", wantKeep: true},
		{name: "empty replaced", inbound: ""},
		{name: "unsafe chars replaced", inbound: "bad id\n"},
		{name: "too long replaced", inbound: strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(applog.Discard(), nil)
			var seen string
			h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.inbound != "" {
				req.Header.Set(HeaderRequestID, tt.inbound)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if (seen == tt.inbound) != tt.wantKeep {
				t.Errorf("request id = %q, inbound %q, wantKeep %v", seen, tt.inbound, tt.wantKeep)
			}
			if seen == "" {
				t.Error("request id should never be empty")
			}
		})
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
