package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWebhookHandler(attempts int) *WebhookHandler {
	return NewWebhookHandler(WebhookOptions{
		Timeout:       5 * time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, nil)
}

func TestWebhookConfigValidation(t *testing.T) {
	h := newTestWebhookHandler(1)
	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{"missing url", `{}`, true},
		{"ftp url", `{"url":"ftp://example.com"}`, true},
		{"bare host", `{"url":"example.com/hook"}`, true},
		{"http url", `{"url":"http://example.com/hook"}`, false},
		{"https url with headers", `{"url":"https://example.com/hook","headers":{"X-Token":"abc"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ValidateConfig(json.RawMessage(tt.config))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	h := newTestWebhookHandler(3)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`), testLog())

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d", result.StatusCode)
	}
	if result.Response != `{"ok":true}` {
		t.Errorf("response = %q", result.Response)
	}
	if result.URL != server.URL {
		t.Errorf("url = %q", result.URL)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestWebhookExhaustsAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := newTestWebhookHandler(2)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`), testLog())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
	if !strings.Contains(result.Error, "502") {
		t.Errorf("error = %q", result.Error)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestWebhookUnsupportedMethodIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	h := newTestWebhookHandler(3)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`","method":"DELETE"}`), testLog())

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "unsupported HTTP method: DELETE") {
		t.Errorf("error = %q", result.Error)
	}
	if result.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", result.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("server calls = %d, want 0", got)
	}
}

func TestWebhookDefaultPayloadAndHeaders(t *testing.T) {
	var (
		gotMethod string
		gotHeader http.Header
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := newTestWebhookHandler(1)
	config := `{"url":"` + server.URL + `","method":"put","headers":{"X-Token":"secret"}}`
	result := h.Execute(context.Background(), json.RawMessage(config), testLog())
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotHeader.Get("X-Token") != "secret" {
		t.Errorf("X-Token header = %q", gotHeader.Get("X-Token"))
	}
	if gotHeader.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeader.Get("Content-Type"))
	}

	want := map[string]any{
		"log_id":        "log-1",
		"twilio_sid":    "CA123",
		"log_type":      "call",
		"timestamp":     "2024-03-01T12:30:00+00:00",
		"status":        "failed",
		"error_code":    "30001",
		"error_message": "Queue overflow",
		"from_number":   "+15550001111",
		"to_number":     nil,
	}
	if len(gotBody) != len(want) {
		t.Errorf("payload has %d keys, want %d: %v", len(gotBody), len(want), gotBody)
	}
	for k, v := range want {
		got, ok := gotBody[k]
		if !ok {
			t.Errorf("payload missing key %q", k)
			continue
		}
		if got != v {
			t.Errorf("payload[%q] = %v, want %v", k, got, v)
		}
	}
}

func TestIsoTimestamp(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole seconds", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "2024-03-01T12:30:00+00:00"},
		{"microseconds", time.Date(2024, 3, 1, 12, 30, 0, 120000, time.UTC), "2024-03-01T12:30:00.000120+00:00"},
		{"sub-microsecond dropped", time.Date(2024, 3, 1, 12, 30, 0, 999, time.UTC), "2024-03-01T12:30:00+00:00"},
		{"converted to utc", time.Date(2024, 3, 1, 7, 30, 0, 500000000, est), "2024-03-01T12:30:00.500000+00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isoTimestamp(tt.in); got != tt.want {
				t.Errorf("isoTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebhookDataOverridesPayload(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer server.Close()

	h := newTestWebhookHandler(1)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`","data":{"team":"voice"}}`), testLog())
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if body != `{"team":"voice"}` {
		t.Errorf("body = %q", body)
	}
}

func TestWebhookEmptyDataUsesDefaultPayload(t *testing.T) {
	for _, data := range []string{`null`, `{}`, `[]`} {
		t.Run(data, func(t *testing.T) {
			var payload map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&payload)
			}))
			defer server.Close()

			h := newTestWebhookHandler(1)
			h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`","data":`+data+`}`), testLog())
			if payload["twilio_sid"] != "CA123" {
				t.Errorf("expected default payload, got %v", payload)
			}
		})
	}
}

func TestWebhookTruncatesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("é", 800)))
	}))
	defer server.Close()

	h := newTestWebhookHandler(1)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`), testLog())
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if got := len([]rune(result.Response)); got != maxResponseChars {
		t.Errorf("response length = %d, want %d", got, maxResponseChars)
	}
}

func TestWebhookNetworkErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	h := newTestWebhookHandler(2)
	result := h.Execute(context.Background(), json.RawMessage(`{"url":"`+url+`"}`), testLog())
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
}

func TestWebhookRetryDelayInterruptedByContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h := newTestWebhookHandler(5)
	var sleeps int
	h.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		cancel()
		return ctx.Err()
	}

	result := h.Execute(ctx, json.RawMessage(`{"url":"`+server.URL+`"}`), testLog())
	if result.Success {
		t.Fatal("expected failure")
	}
	if sleeps != 1 || result.Attempts != 1 {
		t.Errorf("sleeps = %d attempts = %d, want 1 and 1", sleeps, result.Attempts)
	}
	if result.Error != context.Canceled.Error() {
		t.Errorf("error = %q", result.Error)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v", err)
	}
}
