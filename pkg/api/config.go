package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Default identity headers
const (
	DefaultUserHeader = "X-User-ID"
	DefaultPlanHeader = "X-Plan-ID"
)

// Config holds configuration for the reply API handler
type Config struct {
	// Engine is the reply engine instance (required)
	Engine *replygate.Engine

	// GetUserID extracts user ID from HTTP request (required)
	GetUserID func(*http.Request) string

	// GetPlanID extracts the caller's plan identifier.
	// If nil, reads the X-Plan-ID header; an empty or unknown plan resolves to free.
	GetPlanID func(*http.Request) string

	// OnError handles request errors (auth, validation, internal)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is used for request-level logging (default: NoopLogger)
	Logger replygate.Logger

	// MaxBodyBytes bounds the dispatch request body (default: 64KiB)
	MaxBodyBytes int64
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new reply API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.GetPlanID == nil {
		config.GetPlanID = FromHeader(DefaultPlanHeader)
	}
	if config.Logger == nil {
		config.Logger = &replygate.NoopLogger{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 10
	}
	return &Handler{
		config:   config,
		validate: newValidator(),
	}, nil
}

// Helper functions for common identity extraction patterns

// FromHeader returns an extractor that reads a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns an extractor that reads a string value from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if v, ok := r.Context().Value(key).(string); ok {
			return v
		}
		return ""
	}
}
