package api

// DispatchBody is the JSON body of a dispatch request
type DispatchBody struct {
	Keyword string `json:"keyword" validate:"required,max=100"`
	Message string `json:"message" validate:"max=4096"`
	Sender  string `json:"sender" validate:"max=255"`
}

// ErrorResponse is returned for request-level failures (auth, validation)
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
