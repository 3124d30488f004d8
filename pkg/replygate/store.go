package replygate

import (
	"context"
)

// Store is the external key-value document store.
// All methods use raw JSON documents so backends stay free of engine types.
type Store interface {
	// Get returns the document stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores doc under key, replacing any previous value (last writer wins)
	Set(ctx context.Context, key string, doc []byte) error
}

// Pinger is implemented by stores that can report backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key namespaces. Every key is "<namespace>:<userID>".
const (
	nsUsage    = "usage"
	nsKeywords = "keywords"
	nsSettings = "settings"
	nsLogs     = "logs"
)

// UsageKey returns the store key of a user's usage stats
func UsageKey(userID string) string { return nsUsage + ":" + userID }

// KeywordsKey returns the store key of a user's keyword list
func KeywordsKey(userID string) string { return nsKeywords + ":" + userID }

// SettingsKey returns the store key of a user's settings
func SettingsKey(userID string) string { return nsSettings + ":" + userID }

// LogsKey returns the store key of a user's log ring
func LogsKey(userID string) string { return nsLogs + ":" + userID }
