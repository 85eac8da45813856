package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orderdesk/orderdesk/pkg/events"
	"github.com/orderdesk/orderdesk/pkg/urlvalidation"
)

func testConfig() DelivererConfig {
	return DelivererConfig{
		MaxRetries:        1,
		TimeoutSec:        5,
		BackoffInitialSec: 1,
		BackoffMaxSec:     1,
		CBFailThreshold:   5,
		CBResetTimeoutSec: 60,
	}
}

func testEnvelope() events.Envelope {
	data, _ := json.Marshal(events.WebhookTestData{
		WebhookID: "wh-1",
		Message:   "ping",
	})
	return events.Envelope{
		ID:        "evt-1",
		Type:      events.WebhookTest,
		Source:    "test",
		SessionID: "sess-1",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func TestDelivererSuccess(t *testing.T) {
	var received atomic.Bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing Content-Type header")
		}
		if r.Header.Get(SignatureHeader) == "" {
			t.Error("missing signature header")
		}
		if r.Header.Get("X-Orderdesk-Event") != string(events.WebhookTest) {
			t.Error("wrong event header")
		}
		if r.Header.Get("X-Orderdesk-Delivery") != "evt-1" {
			t.Error("wrong delivery header")
		}
		received.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// A nil repository skips delivery recording, which is all this
	// unit test needs.
	d := NewDeliverer(nil, testConfig(), nil, nil, urlvalidation.AllowPrivateIPs())

	wh := Endpoint{
		URL:    ts.URL,
		Secret: "test-secret",
	}
	wh.ID = "wh-1"

	d.Deliver(t.Context(), wh, testEnvelope())

	if !received.Load() {
		t.Error("server did not receive the webhook delivery")
	}
}

func TestDelivererSignatureVerification(t *testing.T) {
	secret := "webhook-secret-123"
	var sigValid atomic.Bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 4096)
		n, _ := r.Body.Read(body)
		body = body[:n]

		sig := r.Header.Get(SignatureHeader)
		if Verify(secret, body, sig) {
			sigValid.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDeliverer(nil, testConfig(), nil, nil, urlvalidation.AllowPrivateIPs())

	wh := Endpoint{
		URL:    ts.URL,
		Secret: secret,
	}
	wh.ID = "wh-sig"

	d.Deliver(t.Context(), wh, testEnvelope())

	if !sigValid.Load() {
		t.Error("webhook signature was not valid")
	}
}

func TestDelivererRejectsUnvalidatedURL(t *testing.T) {
	var called atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer ts.Close()

	// No AllowPrivateIPs: the loopback test server must be refused.
	d := NewDeliverer(nil, testConfig(), nil, nil)

	wh := Endpoint{URL: ts.URL, Secret: "s"}
	wh.ID = "wh-ssrf"

	d.Deliver(t.Context(), wh, testEnvelope())

	if called.Load() {
		t.Error("delivery reached a private address")
	}
}

type captureReporter struct {
	mu      sync.Mutex
	reports []events.DeliveryFailureData
}

func (c *captureReporter) Emit(_ context.Context, _ events.EventType, _ string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, data.(events.DeliveryFailureData))
	return nil
}

func (c *captureReporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func TestDelivererReportsExhaustedRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reporter := &captureReporter{}
	d := NewDeliverer(nil, testConfig(), nil, reporter, urlvalidation.AllowPrivateIPs())

	wh := Endpoint{URL: ts.URL, Secret: "s"}
	wh.ID = "wh-fail"

	d.Deliver(t.Context(), wh, testEnvelope())

	if got := reporter.count(); got != 1 {
		t.Errorf("failure reports = %d, want 1", got)
	}
	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.reports) == 1 {
		r := reporter.reports[0]
		if r.WebhookID != "wh-fail" || r.EventID != "evt-1" || r.Attempts != 1 {
			t.Errorf("report = %+v", r)
		}
	}
}

func TestDelivererNeverReportsErrorEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reporter := &captureReporter{}
	d := NewDeliverer(nil, testConfig(), nil, reporter, urlvalidation.AllowPrivateIPs())

	wh := Endpoint{URL: ts.URL, Secret: "s"}
	wh.ID = "wh-loop"

	env := testEnvelope()
	env.Type = events.SystemError

	d.Deliver(t.Context(), wh, env)

	if got := reporter.count(); got != 0 {
		t.Errorf("failure reports = %d, want 0 for error events", got)
	}
}
