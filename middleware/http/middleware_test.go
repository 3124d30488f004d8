package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mihaimyh/replygate/pkg/replygate"
	"github.com/mihaimyh/replygate/storage/memory"
)

var testNow = time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)

// Test helper to create an engine with one active keyword for user1
func setupTestEngine(t *testing.T, store replygate.Store) *replygate.Engine {
	t.Helper()

	engine, err := replygate.NewEngine(store, replygate.Config{
		Clock:    replygate.ClockFunc(func() time.Time { return testNow }),
		Sleeper:  replygate.SleeperFunc(func(time.Duration) {}),
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.State().SaveKeywords(ctx, "user1", []replygate.KeywordRecord{
		{Keyword: "hello", Reply: "Hi {sender}!", Active: true},
	}); err != nil {
		t.Fatalf("Failed to seed keywords: %v", err)
	}
	return engine
}

func testConfig(engine *replygate.Engine) Config {
	return Config{
		Engine:     engine,
		GetUserID:  FromHeader("X-User-ID"),
		GetKeyword: KeywordFromQuery("keyword"),
	}
}

func newRequest(userID, keyword, plan string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/reply?keyword="+keyword, http.NoBody)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if plan != "" {
		req.Header.Set("X-Plan-ID", plan)
	}
	return req
}

func TestMiddleware_Allowed(t *testing.T) {
	engine := setupTestEngine(t, memory.New())

	var (
		gotVerdict  replygate.Verdict
		gotIdentity Identity
	)
	handler := Middleware(testConfig(engine))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVerdict, _ = VerdictFromContext(r.Context())
		gotIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "HELLO", "pro"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !gotVerdict.Allow || gotVerdict.Keyword == nil || gotVerdict.Keyword.Keyword != "hello" {
		t.Errorf("Unexpected verdict: %+v", gotVerdict)
	}
	if gotVerdict.Limits.ID != replygate.PlanPro {
		t.Errorf("Expected pro limits, got %s", gotVerdict.Limits.ID)
	}
	if gotIdentity.UserID != "user1" || gotIdentity.PlanID != "pro" {
		t.Errorf("Unexpected identity: %+v", gotIdentity)
	}

	// The gate never records usage
	stats, err := engine.State().Stats(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.DailyRepliesUsed != 0 {
		t.Errorf("Expected no recorded usage, got %d", stats.DailyRepliesUsed)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	called := false
	handler := Middleware(testConfig(engine))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("", "hello", ""))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if called {
		t.Error("Handler should not be called")
	}
}

func TestMiddleware_MissingKeyword(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	handler := Middleware(testConfig(engine))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "", ""))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestMiddleware_Denials(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		seed       func(t *testing.T, engine *replygate.Engine)
		keyword    string
		wantStatus int
	}{
		{
			name:       "unknown keyword",
			keyword:    "bye",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "quota exceeded",
			seed: func(t *testing.T, engine *replygate.Engine) {
				err := engine.State().SaveStats(ctx, "user1", replygate.UsageStats{
					DailyRepliesUsed: 5, QuotaResetTime: testNow.Add(time.Hour),
				})
				if err != nil {
					t.Fatal(err)
				}
			},
			keyword:    "hello",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name: "outside working hours",
			seed: func(t *testing.T, engine *replygate.Engine) {
				start, end := 20, 22
				err := engine.State().SaveSettings(ctx, "user1", replygate.Settings{
					WorkingHours: replygate.WorkingHours{Enabled: true, Start: &start, End: &end},
				})
				if err != nil {
					t.Fatal(err)
				}
			},
			keyword:    "hello",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := setupTestEngine(t, memory.New())
			if tt.seed != nil {
				tt.seed(t, engine)
			}
			handler := Middleware(testConfig(engine))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("Handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, newRequest("user1", tt.keyword, "free"))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestMiddleware_CustomOnDenied(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	config := testConfig(engine)

	var reason string
	config.OnDenied = func(w http.ResponseWriter, _ *http.Request, v replygate.Verdict) {
		reason = v.Reason
		w.WriteHeader(http.StatusPaymentRequired)
	}
	handler := Middleware(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "missing", ""))

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected custom status, got %d", w.Code)
	}
	if reason != replygate.ReasonKeywordNotFound {
		t.Errorf("Unexpected reason %q", reason)
	}
}

// brokenStore fails every read
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }

func (brokenStore) Set(context.Context, string, []byte) error { return nil }

func TestMiddleware_StoreError(t *testing.T) {
	engine := setupTestEngine(t, brokenStore{})
	config := testConfig(engine)

	var gotErr error
	config.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	handler := Middleware(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "hello", ""))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if gotErr == nil {
		t.Error("Expected OnError to receive the store error")
	}
}

func TestHandlerFunc(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	config := testConfig(engine)
	config.GetPlanID = FixedPlan(replygate.PlanAdvanced)

	wrapped := HandlerFunc(config)(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.PlanID != replygate.PlanAdvanced {
			t.Errorf("Unexpected identity: %+v", id)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	wrapped(w, newRequest("user1", "hello", ""))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
}

func TestExtractors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?kw=price", http.NoBody)
	req.Header.Set("X-Keyword", "hours")
	req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "ctx-user", PlanID: "pro"}))

	if got := FromContext(UserIDKey)(req); got != "ctx-user" {
		t.Errorf("FromContext() = %q", got)
	}
	if got, _ := KeywordFromQuery("kw")(req); got != "price" {
		t.Errorf("KeywordFromQuery() = %q", got)
	}
	if got, _ := KeywordFromHeader("X-Keyword")(req); got != "hours" {
		t.Errorf("KeywordFromHeader() = %q", got)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("Expected no identity in empty context")
	}
}

// rateLimitedEngine returns an engine whose user1 has spent the single send allowed per minute
func rateLimitedEngine(t *testing.T) *replygate.Engine {
	t.Helper()

	engine, err := replygate.NewEngine(memory.New(), replygate.Config{
		Clock:             replygate.ClockFunc(func() time.Time { return testNow }),
		Sleeper:           replygate.SleeperFunc(func(time.Duration) {}),
		Location:          time.UTC,
		EnforceRateLimits: true,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := engine.State().SaveKeywords(ctx, "user1", []replygate.KeywordRecord{
		{Keyword: "hello", Reply: "Hi {sender}!", Active: true},
	}); err != nil {
		t.Fatalf("Failed to seed keywords: %v", err)
	}
	if err := engine.State().SaveSettings(ctx, "user1", replygate.Settings{
		RateLimit: replygate.RateLimit{MaxPerMinute: 1},
	}); err != nil {
		t.Fatalf("Failed to seed settings: %v", err)
	}
	out := engine.Dispatch(ctx, replygate.DispatchRequest{UserID: "user1", PlanID: replygate.PlanAdvanced, Keyword: "hello"})
	if !out.Success {
		t.Fatalf("Expected first dispatch to succeed, got %q", out.Error)
	}
	return engine
}

// assertRateLimitHeaders checks the headers set on a rate-limited denial
func assertRateLimitHeaders(t *testing.T, header http.Header) {
	t.Helper()
	want := map[string]string{
		"X-RateLimit-Limit":     "1",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     strconv.FormatInt(testNow.Add(time.Minute).Unix(), 10),
		"Retry-After":           "60",
	}
	for k, v := range want {
		if got := header.Get(k); got != v {
			t.Errorf("Expected %s %q, got %q", k, v, got)
		}
	}
}

func TestMiddleware_RateLimitHeaders(t *testing.T) {
	engine := rateLimitedEngine(t)
	handler := Middleware(testConfig(engine))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not run for a rate-limited trigger")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "hello", "advanced"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	assertRateLimitHeaders(t, w.Header())
}

func TestMiddleware_QuotaDenialHasNoRateHeaders(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	if err := engine.State().SaveStats(context.Background(), "user1", replygate.UsageStats{
		DailyRepliesUsed: 5,
		QuotaResetTime:   testNow.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed stats: %v", err)
	}

	handler := Middleware(testConfig(engine))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user1", "hello", "free"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Errorf("Expected no Retry-After on a quota denial, got %q", got)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	engine := setupTestEngine(t, memory.New())
	tests := []struct {
		name   string
		config Config
	}{
		{name: "missing engine", config: Config{GetUserID: FromHeader("X-User-ID"), GetKeyword: KeywordFromQuery("k")}},
		{name: "missing user extractor", config: Config{Engine: engine, GetKeyword: KeywordFromQuery("k")}},
		{name: "missing keyword extractor", config: Config{Engine: engine, GetUserID: FromHeader("X-User-ID")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Expected Middleware to panic")
				}
			}()
			Middleware(tt.config)
		})
	}
}
