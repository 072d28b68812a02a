package models

// ErrorType classifies API errors for clients.
type ErrorType string

const (
	GeneralErrorType    ErrorType = "GeneralError"
	ValidationErrorType ErrorType = "ValidationError"
	NotFoundErrorType   ErrorType = "NotFoundError"
	ConflictErrorType   ErrorType = "ConflictError"
	DatabaseErrorType   ErrorType = "DatabaseError"
)

// APIResponse is the envelope of every query-surface response.
type APIResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}
