// Package http provides HTTP middleware that gates handlers on reply eligibility
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// PlanExtractor extracts the caller's plan identifier from an HTTP request
type PlanExtractor func(r *http.Request) string

// KeywordExtractor extracts the trigger keyword from an HTTP request
type KeywordExtractor func(r *http.Request) (string, error)

// Config holds middleware configuration
type Config struct {
	// Engine is the reply engine instance
	Engine *replygate.Engine

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// GetKeyword extracts the trigger keyword from request (required)
	GetKeyword KeywordExtractor

	// GetPlanID extracts the plan identifier
	// Default: X-Plan-ID header
	GetPlanID PlanExtractor

	// OnDenied is called when the evaluator denies the trigger
	// If nil, returns 429 for quota and rate denials and 403 otherwise
	OnDenied func(w http.ResponseWriter, r *http.Request, verdict replygate.Verdict)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that only lets eligible triggers through.
// Nothing is recorded; the downstream handler is expected to call Engine.Dispatch.
// The verdict and caller identity are available to it through the request context.
// It panics when Engine, GetUserID or GetKeyword is missing.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Engine == nil {
		panic("replygate/http: Config.Engine is required")
	}
	if config.GetUserID == nil {
		panic("replygate/http: Config.GetUserID is required")
	}
	if config.GetKeyword == nil {
		panic("replygate/http: Config.GetKeyword is required")
	}
	if config.GetPlanID == nil {
		config.GetPlanID = PlanFromHeader("X-Plan-ID")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract user ID
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			keyword, err := config.GetKeyword(r)
			if err != nil || keyword == "" {
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}

			planID := config.GetPlanID(r)
			verdict, err := config.Engine.Check(r.Context(), userID, planID, keyword)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !verdict.Allow {
				for k, v := range replygate.RateLimitHeaders(verdict) {
					w.Header().Set(k, v)
				}
				if config.OnDenied != nil {
					config.OnDenied(w, r, verdict)
				} else {
					http.Error(w, verdict.Reason, DeniedStatus(verdict.Err))
				}
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: userID, PlanID: planID})
			ctx = context.WithValue(ctx, verdictKey, verdict)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandlerFunc creates an HTTP middleware that gates on eligibility (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// DeniedStatus maps a denial sentinel to an HTTP status code
func DeniedStatus(err error) int {
	if errors.Is(err, replygate.ErrQuotaExceeded) || errors.Is(err, replygate.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	if errors.Is(err, replygate.ErrKeywordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusForbidden
}

// Identity is the caller identity resolved by the middleware
type Identity struct {
	UserID string
	PlanID string
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "replygate:userID"

	// PlanIDKey is the context key for plan ID
	PlanIDKey ContextKey = "replygate:planID"

	verdictKey ContextKey = "replygate:verdict"
)

// WithIdentity stores the caller identity in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, PlanIDKey, id.PlanID)
}

// IdentityFromContext returns the identity stored by WithIdentity
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return Identity{}, false
	}
	planID, _ := ctx.Value(PlanIDKey).(string)
	return Identity{UserID: userID, PlanID: planID}, true
}

// VerdictFromContext returns the verdict of the trigger that passed the middleware
func VerdictFromContext(ctx context.Context) (replygate.Verdict, bool) {
	v, ok := ctx.Value(verdictKey).(replygate.Verdict)
	return v, ok
}

// Common extractors for convenience

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// PlanFromHeader returns a PlanExtractor that reads a header
func PlanFromHeader(headerName string) PlanExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FixedPlan returns a PlanExtractor that always returns planID
func FixedPlan(planID string) PlanExtractor {
	return func(*http.Request) string {
		return planID
	}
}

// KeywordFromQuery returns a KeywordExtractor that reads a query parameter
func KeywordFromQuery(name string) KeywordExtractor {
	return func(r *http.Request) (string, error) {
		return r.URL.Query().Get(name), nil
	}
}

// KeywordFromHeader returns a KeywordExtractor that reads a header
func KeywordFromHeader(headerName string) KeywordExtractor {
	return func(r *http.Request) (string, error) {
		return r.Header.Get(headerName), nil
	}
}
