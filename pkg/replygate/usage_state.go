package replygate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultLogRingSize is the number of log entries kept per user
const DefaultLogRingSize = 100

// UsageState is the typed accessor over a Store. Missing documents resolve to defaults
// (zero stats, no keywords, default settings, empty log) instead of errors.
type UsageState struct {
	store    Store
	metrics  Metrics
	ringSize int
}

// NewUsageState creates an accessor. A ringSize <= 0 uses DefaultLogRingSize.
func NewUsageState(store Store, metrics Metrics, ringSize int) *UsageState {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	if ringSize <= 0 {
		ringSize = DefaultLogRingSize
	}
	return &UsageState{store: store, metrics: metrics, ringSize: ringSize}
}

// Stats loads a user's usage stats
func (u *UsageState) Stats(ctx context.Context, userID string) (UsageStats, error) {
	var stats UsageStats
	if err := u.load(ctx, "get_stats", UsageKey(userID), &stats); err != nil {
		return UsageStats{}, err
	}
	return stats, nil
}

// SaveStats persists a user's usage stats
func (u *UsageState) SaveStats(ctx context.Context, userID string, stats UsageStats) error {
	return u.save(ctx, "set_stats", UsageKey(userID), stats)
}

// Keywords loads a user's keyword list
func (u *UsageState) Keywords(ctx context.Context, userID string) ([]KeywordRecord, error) {
	var keywords []KeywordRecord
	if err := u.load(ctx, "get_keywords", KeywordsKey(userID), &keywords); err != nil {
		return nil, err
	}
	return keywords, nil
}

// SaveKeywords replaces a user's keyword list. It belongs to the configuration surface and
// is exposed for seeding and tests.
func (u *UsageState) SaveKeywords(ctx context.Context, userID string, keywords []KeywordRecord) error {
	return u.save(ctx, "set_keywords", KeywordsKey(userID), keywords)
}

// Settings loads a user's settings
func (u *UsageState) Settings(ctx context.Context, userID string) (Settings, error) {
	var settings Settings
	if err := u.load(ctx, "get_settings", SettingsKey(userID), &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// SaveSettings replaces a user's settings. Like SaveKeywords it serves the configuration surface.
func (u *UsageState) SaveSettings(ctx context.Context, userID string, settings Settings) error {
	return u.save(ctx, "set_settings", SettingsKey(userID), settings)
}

// Logs loads a user's log ring, newest first
func (u *UsageState) Logs(ctx context.Context, userID string) ([]LogEntry, error) {
	var logs []LogEntry
	if err := u.load(ctx, "get_logs", LogsKey(userID), &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// AppendLog puts entry at the head of the ring and drops anything beyond the ring size
func (u *UsageState) AppendLog(ctx context.Context, userID string, entry LogEntry) error {
	logs, err := u.Logs(ctx, userID)
	if err != nil {
		return err
	}

	ring := make([]LogEntry, 0, min(len(logs)+1, u.ringSize))
	ring = append(ring, entry)
	for _, e := range logs {
		if len(ring) == u.ringSize {
			break
		}
		ring = append(ring, e)
	}

	return u.save(ctx, "set_logs", LogsKey(userID), ring)
}

func (u *UsageState) load(ctx context.Context, op, key string, v interface{}) error {
	start := time.Now()
	doc, err := u.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	u.metrics.RecordStoreOperation(op, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}

	if len(doc) == 0 {
		return nil
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (u *UsageState) save(ctx context.Context, op, key string, v interface{}) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	start := time.Now()
	err = u.store.Set(ctx, key, doc)
	u.metrics.RecordStoreOperation(op, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
