package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

const maxUserIDLen = 255

var (
	errMissingUser = errors.New("user ID not found")
	errInvalidUser = errors.New("invalid user ID format")
)

// ValidationError reports which request fields failed validation
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// Handler provides HTTP endpoints for reply dispatch and usage inspection
type Handler struct {
	config   Config
	validate *validator.Validate
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Register mounts the handler's routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/dispatch", h.Dispatch)
	mux.HandleFunc("GET /v1/analytics", h.GetAnalytics)
	mux.HandleFunc("GET /v1/upgrade-prompt", h.GetUpgradePrompt)
}

// Dispatch runs a trigger through the engine. The response body is the Outcome; the status
// is 200 on success, 422 on a denial and 500 on an internal error.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var body DispatchBody
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if err := h.validateBody(&body); err != nil {
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	}

	out := h.config.Engine.Dispatch(r.Context(), replygate.DispatchRequest{
		UserID:  userID,
		PlanID:  h.config.GetPlanID(r),
		Keyword: body.Keyword,
		Message: body.Message,
		Sender:  body.Sender,
	})
	writeJSON(w, StatusFor(out), out)
}

// GetAnalytics returns the caller's usage report
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	report, err := h.config.Engine.Analytics(r.Context(), userID, h.config.GetPlanID(r))
	if err != nil {
		h.config.Logger.Error("analytics failed", replygate.Field{Key: "user_id", Value: userID},
			replygate.Field{Key: "error", Value: err.Error()})
		h.handleError(w, r, fmt.Errorf("failed to build analytics: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetUpgradePrompt tells the caller whether to show an upgrade prompt
func (h *Handler) GetUpgradePrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	prompt, err := h.config.Engine.ShouldPrompt(r.Context(), userID, h.config.GetPlanID(r))
	if err != nil {
		h.config.Logger.Error("upgrade prompt failed", replygate.Field{Key: "user_id", Value: userID},
			replygate.Field{Key: "error", Value: err.Error()})
		h.handleError(w, r, fmt.Errorf("failed to evaluate upgrade prompt: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

// StatusFor maps a dispatch outcome to an HTTP status code
func StatusFor(out replygate.Outcome) int {
	switch {
	case out.Success:
		return http.StatusOK
	case errors.Is(out.Err, replygate.ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// userID extracts and validates the caller's identity, writing the error response if needed
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, errMissingUser, http.StatusUnauthorized)
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, errInvalidUser, http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func (h *Handler) validateBody(body *DispatchBody) error {
	err := h.validate.Struct(body)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already sent, so an encoding failure cannot be reported
	_ = json.NewEncoder(w).Encode(v)
}
