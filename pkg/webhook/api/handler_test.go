package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/orderdesk/orderdesk/pkg/events"
	"github.com/orderdesk/orderdesk/pkg/urlvalidation"
)

// staticResolver keeps URL validation off live DNS.
func staticResolver(host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	if host == "hooks.example.com" {
		return []string{"93.184.216.34"}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	h := NewHandler(nil, nil, urlvalidation.WithLookupHost(staticResolver))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestCreateRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "invalid json",
			body:    `{"name":`,
			wantMsg: "invalid request body",
		},
		{
			name:    "missing name",
			body:    `{"url":"https://hooks.example.com/x"}`,
			wantMsg: "name and url are required",
		},
		{
			name:    "missing url",
			body:    `{"name":"crm"}`,
			wantMsg: "name and url are required",
		},
		{
			name:    "unknown event type",
			body:    `{"name":"crm","url":"https://hooks.example.com/x","event_types":["order.deleted"]}`,
			wantMsg: `unknown event type "order.deleted"`,
		},
		{
			name:    "misspelled event type",
			body:    `{"name":"crm","url":"https://hooks.example.com/x","event_types":["order.completed","orders.complete"]}`,
			wantMsg: `unknown event type "orders.complete"`,
		},
		{
			name:    "disallowed scheme",
			body:    `{"name":"crm","url":"ftp://hooks.example.com/x"}`,
			wantMsg: "invalid webhook URL",
		},
		{
			name:    "private address",
			body:    `{"name":"crm","url":"http://10.0.0.1/x"}`,
			wantMsg: "invalid webhook URL",
		},
	}

	mux := newTestMux(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if !strings.Contains(resp.Error, tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", resp.Error, tt.wantMsg)
			}
		})
	}
}

func TestListEventTypes(t *testing.T) {
	mux := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/event-types", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp EventTypesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.EventTypes) == 0 {
		t.Fatal("no event types listed")
	}
	seen := make(map[events.EventType]bool, len(resp.EventTypes))
	for _, et := range resp.EventTypes {
		if !et.Subscribable() {
			t.Errorf("listed type %q is not subscribable", et)
		}
		seen[et] = true
	}
	for _, want := range []events.EventType{events.OrderCompleted, events.OrderCancelled, events.SystemError} {
		if !seen[want] {
			t.Errorf("listing missing %q", want)
		}
	}
}

func TestCheckEventTypes(t *testing.T) {
	if err := checkEventTypes(nil); err != nil {
		t.Errorf("empty list rejected: %v", err)
	}
	if err := checkEventTypes([]events.EventType{events.OrderCompleted, events.WebhookTest}); err != nil {
		t.Errorf("known types rejected: %v", err)
	}
	if err := checkEventTypes([]events.EventType{events.OrderCompleted, "nope"}); err == nil {
		t.Error("unknown type accepted")
	}
}
