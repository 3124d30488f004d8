package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/replygate/pkg/replygate"
	"github.com/mihaimyh/replygate/storage/memory"
)

const testUserID = "user123"

var testNow = time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)

// newTestEngine creates an engine over memory storage with a fixed clock and no delay
func newTestEngine(t *testing.T) (*replygate.Engine, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	engine, err := replygate.NewEngine(storage, replygate.Config{
		Clock:    replygate.ClockFunc(func() time.Time { return testNow }),
		Sleeper:  replygate.SleeperFunc(func(time.Duration) {}),
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.State().SaveKeywords(ctx, testUserID, []replygate.KeywordRecord{
		{Keyword: "hello", Reply: "Hi {sender}!", Active: true},
	}); err != nil {
		t.Fatalf("Failed to seed keywords: %v", err)
	}
	if err := engine.State().SaveStats(ctx, testUserID, replygate.UsageStats{
		QuotaResetTime: testNow.Add(12 * time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed stats: %v", err)
	}
	return engine, storage
}

func newTestHandler(t *testing.T, engine *replygate.Engine) *Handler {
	t.Helper()
	handler, err := NewHandler(Config{
		Engine:    engine,
		GetUserID: FromHeader(DefaultUserHeader),
	})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	return handler
}

func dispatchRequest(body, plan string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", strings.NewReader(body))
	req.Header.Set(DefaultUserHeader, testUserID)
	if plan != "" {
		req.Header.Set(DefaultPlanHeader, plan)
	}
	return req
}

func TestNewHandler_Validation(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := NewHandler(Config{GetUserID: FromHeader("X")}); err == nil {
		t.Error("Expected error for missing engine")
	}
	if _, err := NewHandler(Config{Engine: engine}); err == nil {
		t.Error("Expected error for missing GetUserID")
	}
}

func TestHandler_Dispatch_Success(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	w := httptest.NewRecorder()
	handler.Dispatch(w, dispatchRequest(`{"keyword":"HELLO","message":"hello there","sender":"Ana"}`, "pro"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var out replygate.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if !out.Success || out.Reply != "Hi Ana!" {
		t.Errorf("Unexpected outcome: %+v", out)
	}

	stats, err := engine.State().Stats(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.DailyRepliesUsed != 1 {
		t.Errorf("Expected 1 daily reply, got %d", stats.DailyRepliesUsed)
	}
}

func TestHandler_Dispatch_Denied(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	w := httptest.NewRecorder()
	handler.Dispatch(w, dispatchRequest(`{"keyword":"unknown"}`, ""))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}

	var out replygate.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if out.Success || out.Error != replygate.ReasonKeywordNotFound {
		t.Errorf("Unexpected outcome: %+v", out)
	}
}

func TestHandler_Dispatch_QuotaExceededOnFree(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.Dispatch(w, dispatchRequest(`{"keyword":"hello"}`, "free"))
		if w.Code != http.StatusOK {
			t.Fatalf("Dispatch %d: expected 200, got %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.Dispatch(w, dispatchRequest(`{"keyword":"hello"}`, "free"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), replygate.ReasonQuotaExceeded) {
		t.Errorf("Expected quota reason in body, got %s", w.Body.String())
	}
}

func TestHandler_Dispatch_BadRequests(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing keyword", body: `{"message":"hi"}`, wantStatus: http.StatusBadRequest, wantField: "keyword"},
		{
			name:       "sender too long",
			body:       `{"keyword":"hello","sender":"` + strings.Repeat("x", 300) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "sender",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Dispatch(w, dispatchRequest(tt.body, ""))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantField == "" {
				return
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if _, ok := resp.Fields[tt.wantField]; !ok {
				t.Errorf("Expected field %q in %v", tt.wantField, resp.Fields)
			}
		})
	}
}

func TestHandler_MissingUser(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics", http.NoBody)
	w := httptest.NewRecorder()
	handler.GetAnalytics(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
}

func TestHandler_UserIDTooLong(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/v1/upgrade-prompt", http.NoBody)
	req.Header.Set(DefaultUserHeader, strings.Repeat("u", maxUserIDLen+1))
	w := httptest.NewRecorder()
	handler.GetUpgradePrompt(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
}

func TestHandler_GetAnalytics(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	w := httptest.NewRecorder()
	handler.Dispatch(w, dispatchRequest(`{"keyword":"hello","sender":"Bo"}`, "free"))
	if w.Code != http.StatusOK {
		t.Fatalf("Dispatch failed: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics", http.NoBody)
	req.Header.Set(DefaultUserHeader, testUserID)
	w = httptest.NewRecorder()
	handler.GetAnalytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report replygate.UsageReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if report.Plan != replygate.PlanFree {
		t.Errorf("Expected plan free, got %s", report.Plan)
	}
	if report.Daily.Used != 1 || report.Daily.Limit != 5 || report.Daily.Percentage != 20 {
		t.Errorf("Unexpected daily usage: %+v", report.Daily)
	}
	if report.Monthly.Limit != 150 {
		t.Errorf("Expected monthly limit 150, got %d", report.Monthly.Limit)
	}
	if len(report.RecentActivity) != 1 {
		t.Errorf("Expected 1 recent activity entry, got %d", len(report.RecentActivity))
	}
}

func TestHandler_GetUpgradePrompt(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)
	ctx := context.Background()

	if err := engine.State().SaveStats(ctx, testUserID, replygate.UsageStats{
		DailyRepliesUsed: 4,
		QuotaResetTime:   testNow.Add(12 * time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed stats: %v", err)
	}

	tests := []struct {
		plan     string
		wantShow bool
	}{
		{plan: "free", wantShow: true},
		{plan: "", wantShow: true},
		{plan: "pro", wantShow: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/upgrade-prompt", http.NoBody)
		req.Header.Set(DefaultUserHeader, testUserID)
		req.Header.Set(DefaultPlanHeader, tt.plan)
		w := httptest.NewRecorder()
		handler.GetUpgradePrompt(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var prompt replygate.UpgradePrompt
		if err := json.Unmarshal(w.Body.Bytes(), &prompt); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if prompt.Show != tt.wantShow {
			t.Errorf("plan %q: expected show=%v, got %+v", tt.plan, tt.wantShow, prompt)
		}
	}
}

func TestHandler_Register(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newTestHandler(t, engine)

	mux := http.NewServeMux()
	handler.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, dispatchRequest(`{"keyword":"hello"}`, "advanced"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/dispatch", http.NoBody)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHandler_CustomOnError(t *testing.T) {
	engine, _ := newTestEngine(t)
	var got error
	handler, err := NewHandler(Config{
		Engine:    engine,
		GetUserID: func(*http.Request) string { return "" },
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	w := httptest.NewRecorder()
	handler.GetAnalytics(w, httptest.NewRequest(http.MethodGet, "/v1/analytics", http.NoBody))
	if w.Code != http.StatusTeapot {
		t.Errorf("Expected custom status, got %d", w.Code)
	}
	if !errors.Is(got, errMissingUser) {
		t.Errorf("Expected errMissingUser, got %v", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		out  replygate.Outcome
		want int
	}{
		{"success", replygate.Outcome{Success: true}, http.StatusOK},
		{"denied", replygate.Outcome{Error: replygate.ReasonOutsideWorkingHours, Err: replygate.ErrOutsideWorkingHours}, http.StatusUnprocessableEntity},
		{"internal", replygate.Outcome{Error: replygate.ReasonInternal, Err: replygate.ErrInternal}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.out); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
