package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/ingest"
	"github.com/good-yellow-bee/callwatch/internal/models"
	"github.com/good-yellow-bee/callwatch/internal/notifier"
	"github.com/good-yellow-bee/callwatch/internal/storage"
)

type fakeProcessor struct {
	count int
	ran   bool
	calls int
}

func (f *fakeProcessor) RunOnce(ctx context.Context) (int, bool, error) {
	f.calls++
	return f.count, f.ran, nil
}

// testServer creates a test server over a temporary SQLite database.
func testServer(t *testing.T, cfg *Config) (*Server, *storage.SQLStorage, *fakeProcessor) {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	if cfg == nil {
		cfg = &Config{}
	}
	proc := &fakeProcessor{count: 3, ran: true}
	registry := notifier.NewRegistry(
		notifier.NewEmailHandler(notifier.SMTPConfig{}, nil),
		notifier.NewWebhookHandler(notifier.WebhookOptions{}, nil),
		notifier.NewChatHandler(nil, time.Second, nil),
	)
	srv, err := New(cfg, Deps{
		Storage:   store,
		Validator: registry,
		Ingester:  ingest.New(store.Logs(), nil),
		Processor: proc,
	}, nil)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, store, proc
}

func doRequest(t *testing.T, srv *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data  json.RawMessage `json:"data"`
		Error *Error          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *Error {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected error body")
	}
	return resp.Error
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRuleLifecycle(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":          "Queue overflow",
		"log_type":      "call",
		"pattern_type":  "error_code",
		"pattern_value": "30001, 30002",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var rule models.MonitoringRule
	decodeData(t, rec, &rule)
	if rule.ID == "" || !rule.Enabled || rule.PatternKind != models.PatternErrorCode {
		t.Errorf("unexpected rule: %+v", rule)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/"+rule.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/rules/"+rule.ID, map[string]any{"pattern_value": "30003"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body = %s", rec.Code, rec.Body.String())
	}
	var updated models.MonitoringRule
	decodeData(t, rec, &updated)
	if updated.Pattern != "30003" || updated.Name != "Queue overflow" {
		t.Errorf("unexpected update: %+v", updated)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/rules/"+rule.ID+"/enabled", map[string]any{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("set enabled status = %d", rec.Code)
	}
	var disabled models.MonitoringRule
	decodeData(t, rec, &disabled)
	if disabled.Enabled {
		t.Error("rule should be disabled")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules", nil)
	var rules []models.MonitoringRule
	decodeData(t, rec, &rules)
	if len(rules) != 1 {
		t.Errorf("rules = %d, want 1", len(rules))
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/rules/"+rule.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/"+rule.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"pattern_type": "status", "pattern_value": "failed"}},
		{"bad pattern type", map[string]any{"name": "x", "pattern_type": "glob", "pattern_value": "*"}},
		{"bad regex", map[string]any{"name": "x", "pattern_type": "regex", "pattern_value": "(unclosed"}},
		{"threshold without window", map[string]any{"name": "x", "pattern_type": "threshold", "threshold_count": 5}},
		{"unknown field", map[string]any{"name": "x", "pattern_type": "status", "pattern_value": "failed", "severity": "high"}},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/rules", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestActionEndpoints(t *testing.T) {
	srv, store, _ := testServer(t, nil)
	ctx := context.Background()

	rule := &models.MonitoringRule{
		ID: "rule-1", Name: "Failures", Enabled: true,
		PatternKind: models.PatternStatus, Pattern: "failed",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/rules/rule-1/actions", map[string]any{
		"action_type": "webhook",
		"config":      map[string]any{"url": "ftp://nope"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeValidationFailed {
		t.Errorf("error code = %s", e.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/rules/rule-1/actions", map[string]any{
		"action_type": "sms",
		"config":      map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/rules/missing/actions", map[string]any{
		"action_type": "chat",
		"config":      map[string]any{"webhook_url": "https://chat.example.com/hook"},
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing rule status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/rules/rule-1/actions", map[string]any{
		"action_type": "chat",
		"config":      map[string]any{"webhook_url": "https://chat.example.com/hook", "use_card": true},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var action models.Action
	decodeData(t, rec, &action)
	if action.RuleID != "rule-1" || action.Kind != models.ActionChat || !action.Enabled {
		t.Errorf("unexpected action: %+v", action)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/rule-1/actions", nil)
	var actions []models.Action
	decodeData(t, rec, &actions)
	if len(actions) != 1 {
		t.Errorf("actions = %d, want 1", len(actions))
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/actions/"+action.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/actions/"+action.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestIngestAndListLogs(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	batch := `{"calls":[{"sid":"CA1","status":"failed","start_time":"2024-03-01T12:00:00Z"}],
		"alerts":[{"sid":"NO1","log_level":"error","alert_text":"boom"}]}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/logs/ingest", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d body = %s", rec.Code, rec.Body.String())
	}
	var ingested IngestResponse
	decodeData(t, rec, &ingested)
	if ingested.Total != 2 || ingested.Calls != 1 || ingested.Alerts != 1 {
		t.Errorf("unexpected ingest response: %+v", ingested)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/logs?processed=false&per_page=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var page struct {
		Items      []models.Log `json:"items"`
		Total      int64        `json:"total"`
		TotalPages int          `json:"total_pages"`
	}
	decodeData(t, rec, &page)
	if page.Total != 2 || len(page.Items) != 1 || page.TotalPages != 2 {
		t.Errorf("unexpected page: total=%d items=%d pages=%d", page.Total, len(page.Items), page.TotalPages)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/logs/"+page.Items[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get log status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/logs?processed=maybe", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad processed status = %d", rec.Code)
	}
}

func TestAlertHistoryList(t *testing.T) {
	srv, store, _ := testServer(t, nil)
	ctx := context.Background()

	for i, ruleID := range []string{"rule-a", "rule-b", "rule-a"} {
		err := store.AlertHistory().Append(ctx, &models.AlertHistory{
			ID:          string(rune('x' + i)),
			RuleID:      ruleID,
			LogID:       "log-1",
			ActionID:    "action-1",
			TriggeredAt: time.Now(),
			Success:     true,
			Result:      json.RawMessage(`{"success":true}`),
		})
		if err != nil {
			t.Fatalf("append history: %v", err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/alerts?rule_id=rule-a", nil)
	var page struct {
		Items []models.AlertHistory `json:"items"`
		Total int64                 `json:"total"`
	}
	decodeData(t, rec, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Errorf("rule-a history = %d/%d, want 2", len(page.Items), page.Total)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/alerts", nil)
	decodeData(t, rec, &page)
	if page.Total != 3 {
		t.Errorf("total history = %d, want 3", page.Total)
	}
}

func TestProcessEndpoint(t *testing.T) {
	srv, _, proc := testServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ProcessResponse
	decodeData(t, rec, &resp)
	if !resp.Ran || resp.Processed != 3 || proc.calls != 1 {
		t.Errorf("unexpected response %+v calls=%d", resp, proc.calls)
	}

	proc.ran = false
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/process", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("locked pass status = %d, want 409", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _, _ := testServer(t, &Config{APIKey: "secret"})

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/rules", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/rules", nil, "X-API-Key", "secret"); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health must stay public, status = %d", rec.Code)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(nil, Deps{}, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}, Deps{}, nil); err == nil {
		t.Error("expected error for missing storage")
	}
}
