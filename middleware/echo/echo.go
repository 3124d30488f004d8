// Package echo provides Echo middleware and handlers for reply eligibility and dispatch
package echo

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/replygate/pkg/api"
	"github.com/mihaimyh/replygate/pkg/replygate"
)

// VerdictKey is the Echo context key holding the verdict of an admitted trigger
const VerdictKey = "replygate.verdict"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// PlanExtractor extracts the caller's plan identifier from an Echo context
type PlanExtractor func(c echo.Context) string

// KeywordExtractor extracts the trigger keyword from an Echo context
type KeywordExtractor func(c echo.Context) (string, error)

// Config holds middleware configuration
type Config struct {
	// Engine is the reply engine instance
	Engine *replygate.Engine

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetKeyword extracts the trigger keyword (required by Middleware)
	GetKeyword KeywordExtractor

	// GetPlanID extracts the plan identifier
	// Default: X-Plan-ID header
	GetPlanID PlanExtractor

	// OnDenied is called when the evaluator denies the trigger
	OnDenied func(c echo.Context, verdict replygate.Verdict) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

func (cfg *Config) applyDefaults() {
	if cfg.Engine == nil {
		panic("replygate/echo: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("replygate/echo: Config.GetUserID is required")
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

// Middleware creates an Echo middleware that rejects ineligible triggers.
// Nothing is recorded; the verdict is stored under VerdictKey for the next handler.
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.GetKeyword == nil {
		panic("replygate/echo: Config.GetKeyword is required")
	}
	cfg.applyDefaults()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				return cfg.OnUnauthorized(c)
			}

			keyword, err := cfg.GetKeyword(c)
			if err != nil || keyword == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Bad Request"})
			}

			verdict, err := cfg.Engine.Check(c.Request().Context(), userID, cfg.GetPlanID(c), keyword)
			if err != nil {
				return cfg.OnError(c, err)
			}
			if !verdict.Allow {
				for k, v := range replygate.RateLimitHeaders(verdict) {
					c.Response().Header().Set(k, v)
				}
				return cfg.OnDenied(c, verdict)
			}

			c.Set(VerdictKey, verdict)
			return next(c)
		}
	}
}

// DispatchHandler creates an Echo handler that dispatches the JSON trigger in the request body
// and responds with the Outcome.
func DispatchHandler(cfg Config) echo.HandlerFunc {
	cfg.applyDefaults()
	validate := validator.New()

	return func(c echo.Context) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			return cfg.OnUnauthorized(c)
		}

		var body api.DispatchBody
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		}
		if err := validate.Struct(&body); err != nil {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		}

		out := cfg.Engine.Dispatch(c.Request().Context(), replygate.DispatchRequest{
			UserID:  userID,
			PlanID:  cfg.GetPlanID(c),
			Keyword: body.Keyword,
			Message: body.Message,
			Sender:  body.Sender,
		})
		return c.JSON(api.StatusFor(out), out)
	}
}

// VerdictFromContext returns the verdict stored by Middleware
func VerdictFromContext(c echo.Context) (replygate.Verdict, bool) {
	verdict, ok := c.Get(VerdictKey).(replygate.Verdict)
	return verdict, ok
}

// Default handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func defaultDenied(c echo.Context, verdict replygate.Verdict) error {
	status := http.StatusForbidden
	switch verdict.Err {
	case replygate.ErrQuotaExceeded, replygate.ErrRateLimited:
		status = http.StatusTooManyRequests
	case replygate.ErrKeywordNotFound:
		status = http.StatusNotFound
	}
	return c.JSON(status, map[string]string{"error": verdict.Reason})
}

func defaultError(c echo.Context, _ error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

// Convenience extractors

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// PlanFromHeader returns a PlanExtractor that reads a header
func PlanFromHeader(headerName string) PlanExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// KeywordFromParam returns a KeywordExtractor that reads a route parameter
func KeywordFromParam(paramName string) KeywordExtractor {
	return func(c echo.Context) (string, error) {
		return c.Param(paramName), nil
	}
}

// KeywordFromQuery returns a KeywordExtractor that reads a query parameter
func KeywordFromQuery(queryName string) KeywordExtractor {
	return func(c echo.Context) (string, error) {
		return c.QueryParam(queryName), nil
	}
}
