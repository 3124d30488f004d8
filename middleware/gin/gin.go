// Package gin provides Gin middleware and handlers for reply eligibility and dispatch
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/replygate/pkg/api"
	"github.com/mihaimyh/replygate/pkg/replygate"
)

// VerdictKey is the Gin context key holding the verdict of an admitted trigger
const VerdictKey = "replygate.verdict"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// PlanExtractor extracts the caller's plan identifier from a Gin context
type PlanExtractor func(c *gongin.Context) string

// KeywordExtractor extracts the trigger keyword from a Gin context
type KeywordExtractor func(c *gongin.Context) (string, error)

// Config holds middleware configuration
type Config struct {
	// Engine is the reply engine instance
	Engine *replygate.Engine

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetKeyword extracts the trigger keyword (required by Middleware, unused by DispatchHandler)
	GetKeyword KeywordExtractor

	// GetPlanID extracts the plan identifier
	// Default: X-Plan-ID header
	GetPlanID PlanExtractor

	// OnDenied is called when the evaluator denies the trigger
	// If nil, responds with the denial reason and a status from the denial kind
	OnDenied func(c *gongin.Context, verdict replygate.Verdict)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

func (cfg *Config) applyDefaults() {
	if cfg.Engine == nil {
		panic("replygate/gin: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("replygate/gin: Config.GetUserID is required")
	}
	if cfg.GetPlanID == nil {
		cfg.GetPlanID = PlanFromHeader(api.DefaultPlanHeader)
	}
	if cfg.OnUnauthorized == nil {
		cfg.OnUnauthorized = defaultUnauthorized
	}
	if cfg.OnError == nil {
		cfg.OnError = defaultError
	}
	if cfg.OnDenied == nil {
		cfg.OnDenied = defaultDenied
	}
}

// Middleware creates a Gin middleware that aborts ineligible triggers.
// Nothing is recorded; the verdict is stored under VerdictKey for the next handler.
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.GetKeyword == nil {
		panic("replygate/gin: Config.GetKeyword is required")
	}
	cfg.applyDefaults()

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			cfg.OnUnauthorized(c)
			c.Abort()
			return
		}

		keyword, err := cfg.GetKeyword(c)
		if err != nil || keyword == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gongin.H{"error": "Bad Request"})
			return
		}

		verdict, err := cfg.Engine.Check(c.Request.Context(), userID, cfg.GetPlanID(c), keyword)
		if err != nil {
			cfg.OnError(c, err)
			c.Abort()
			return
		}
		if !verdict.Allow {
			for k, v := range replygate.RateLimitHeaders(verdict) {
				c.Header(k, v)
			}
			cfg.OnDenied(c, verdict)
			c.Abort()
			return
		}

		c.Set(VerdictKey, verdict)
		c.Next()
	}
}

// dispatchBody uses Gin's binding tags
type dispatchBody struct {
	Keyword string `json:"keyword" binding:"required,max=100"`
	Message string `json:"message" binding:"max=4096"`
	Sender  string `json:"sender" binding:"max=255"`
}

// DispatchHandler creates a Gin handler that dispatches the JSON trigger in the request body
// and responds with the Outcome.
func DispatchHandler(cfg Config) gongin.HandlerFunc {
	cfg.applyDefaults()

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			cfg.OnUnauthorized(c)
			return
		}

		var body dispatchBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gongin.H{"error": err.Error()})
			return
		}

		out := cfg.Engine.Dispatch(c.Request.Context(), replygate.DispatchRequest{
			UserID:  userID,
			PlanID:  cfg.GetPlanID(c),
			Keyword: body.Keyword,
			Message: body.Message,
			Sender:  body.Sender,
		})
		c.JSON(api.StatusFor(out), out)
	}
}

// VerdictFromContext returns the verdict stored by Middleware
func VerdictFromContext(c *gongin.Context) (replygate.Verdict, bool) {
	v, ok := c.Get(VerdictKey)
	if !ok {
		return replygate.Verdict{}, false
	}
	verdict, ok := v.(replygate.Verdict)
	return verdict, ok
}

// Default handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

func defaultDenied(c *gongin.Context, verdict replygate.Verdict) {
	c.JSON(deniedStatus(verdict), gongin.H{"error": verdict.Reason})
}

func defaultError(c *gongin.Context, _ error) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
}

func deniedStatus(verdict replygate.Verdict) int {
	switch verdict.Err {
	case replygate.ErrQuotaExceeded, replygate.ErrRateLimited:
		return http.StatusTooManyRequests
	case replygate.ErrKeywordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// Convenience extractors

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// set by auth middleware, e.g. c.Set("UserID", userID).
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetString(key)
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// PlanFromHeader returns a PlanExtractor that reads a header
func PlanFromHeader(headerName string) PlanExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// KeywordFromParam returns a KeywordExtractor that reads a route parameter
func KeywordFromParam(paramName string) KeywordExtractor {
	return func(c *gongin.Context) (string, error) {
		return c.Param(paramName), nil
	}
}

// KeywordFromQuery returns a KeywordExtractor that reads a query parameter
func KeywordFromQuery(queryName string) KeywordExtractor {
	return func(c *gongin.Context) (string, error) {
		return c.Query(queryName), nil
	}
}
