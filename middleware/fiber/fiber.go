// Package fiber provides Fiber middleware and handlers for reply eligibility and dispatch
package fiber

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/replygate/pkg/api"
	"github.com/mihaimyh/replygate/pkg/replygate"
)

// VerdictKey is the Fiber locals key holding the verdict of an admitted trigger
const VerdictKey = "replygate.verdict"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// PlanExtractor extracts the caller's plan identifier from a Fiber context
type PlanExtractor func(c *fiber.Ctx) string

// KeywordExtractor extracts the trigger keyword from a Fiber context
type KeywordExtractor func(c *fiber.Ctx) (string, error)

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
	OnDenied func(c *fiber.Ctx, verdict replygate.Verdict) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

func (cfg *Config) applyDefaults() {
	if cfg.Engine == nil {
		panic("replygate/fiber: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("replygate/fiber: Config.GetUserID is required")
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

// Middleware creates a Fiber middleware that rejects ineligible triggers.
// Nothing is recorded; the verdict is stored in Locals under VerdictKey.
func Middleware(cfg Config) fiber.Handler {
	if cfg.GetKeyword == nil {
		panic("replygate/fiber: Config.GetKeyword is required")
	}
	cfg.applyDefaults()

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			return cfg.OnUnauthorized(c)
		}

		keyword, err := cfg.GetKeyword(c)
		if err != nil || keyword == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Bad Request"})
		}

		// Fiber uses fasthttp, so the request context.Context comes from UserContext
		verdict, err := cfg.Engine.Check(c.UserContext(), userID, cfg.GetPlanID(c), keyword)
		if err != nil {
			return cfg.OnError(c, err)
		}
		if !verdict.Allow {
			for k, v := range replygate.RateLimitHeaders(verdict) {
				c.Set(k, v)
			}
			return cfg.OnDenied(c, verdict)
		}

		c.Locals(VerdictKey, verdict)
		return c.Next()
	}
}

// DispatchHandler creates a Fiber handler that dispatches the JSON trigger in the request body
// and responds with the Outcome.
func DispatchHandler(cfg Config) fiber.Handler {
	cfg.applyDefaults()
	validate := validator.New()

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			return cfg.OnUnauthorized(c)
		}

		var body api.DispatchBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(api.ErrorResponse{Error: "invalid request body"})
		}
		if err := validate.Struct(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(api.ErrorResponse{Error: err.Error()})
		}

		out := cfg.Engine.Dispatch(c.UserContext(), replygate.DispatchRequest{
			UserID:  userID,
			PlanID:  cfg.GetPlanID(c),
			Keyword: body.Keyword,
			Message: body.Message,
			Sender:  body.Sender,
		})
		return c.Status(api.StatusFor(out)).JSON(out)
	}
}

// VerdictFromContext returns the verdict stored by Middleware
func VerdictFromContext(c *fiber.Ctx) (replygate.Verdict, bool) {
	verdict, ok := c.Locals(VerdictKey).(replygate.Verdict)
	return verdict, ok
}

// Default handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultDenied(c *fiber.Ctx, verdict replygate.Verdict) error {
	status := http.StatusForbidden
	switch verdict.Err {
	case replygate.ErrQuotaExceeded, replygate.ErrRateLimited:
		status = http.StatusTooManyRequests
	case replygate.ErrKeywordNotFound:
		status = http.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": verdict.Reason})
}

func defaultError(c *fiber.Ctx, _ error) error {
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// Convenience extractors

// FromLocals returns a UserIDExtractor that gets user ID from Fiber locals
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// PlanFromHeader returns a PlanExtractor that reads a header
func PlanFromHeader(headerName string) PlanExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// KeywordFromParam returns a KeywordExtractor that reads a route parameter
func KeywordFromParam(paramName string) KeywordExtractor {
	return func(c *fiber.Ctx) (string, error) {
		return c.Params(paramName), nil
	}
}

// KeywordFromQuery returns a KeywordExtractor that reads a query parameter
func KeywordFromQuery(queryName string) KeywordExtractor {
	return func(c *fiber.Ctx) (string, error) {
		return c.Query(queryName), nil
	}
}
