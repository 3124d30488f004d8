package replygate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

// mapStore is an in-package Store with failure injection
type mapStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failGet  string // key prefix whose Get fails
	failSet  string // key prefix whose Set fails
	setCalls int
}

func newMapStore() *mapStore {
	return &mapStore{docs: make(map[string][]byte)}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != "" && strings.HasPrefix(key, s.failGet) {
		return nil, errBackendDown
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (s *mapStore) Set(_ context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failSet != "" && strings.HasPrefix(key, s.failSet) {
		return errBackendDown
	}
	s.docs[key] = append([]byte(nil), doc...)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSleeper struct {
	mu     sync.Mutex
	clock  *fakeClock
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	if s.clock != nil {
		s.clock.Advance(d)
	}
}

func (s *recordingSleeper) calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// testNow is a Tuesday at 10:30 UTC
var testNow = time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)

type testEngine struct {
	*Engine
	store   *mapStore
	clock   *fakeClock
	sleeper *recordingSleeper
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()

	store := newMapStore()
	clock := newFakeClock(testNow)
	sleeper := &recordingSleeper{clock: clock}
	config := Config{
		Clock:    clock,
		Sleeper:  sleeper,
		Location: time.UTC,
	}
	for _, m := range mutate {
		m(&config)
	}

	engine, err := NewEngine(store, config)
	require.NoError(t, err)
	return &testEngine{Engine: engine, store: store, clock: clock, sleeper: sleeper}
}

func (te *testEngine) seedStats(t *testing.T, userID string, stats UsageStats) {
	t.Helper()
	require.NoError(t, te.State().SaveStats(context.Background(), userID, stats))
}

func (te *testEngine) seedKeywords(t *testing.T, userID string, keywords ...KeywordRecord) {
	t.Helper()
	require.NoError(t, te.State().SaveKeywords(context.Background(), userID, keywords))
}

func (te *testEngine) seedSettings(t *testing.T, userID string, settings Settings) {
	t.Helper()
	require.NoError(t, te.State().SaveSettings(context.Background(), userID, settings))
}

func (te *testEngine) stats(t *testing.T, userID string) UsageStats {
	t.Helper()
	stats, err := te.State().Stats(context.Background(), userID)
	require.NoError(t, err)
	return stats
}

func intPtr(v int) *int { return &v }

// futureReset keeps the daily window open for the duration of a test
func futureReset() time.Time { return testNow.Add(12 * time.Hour) }
