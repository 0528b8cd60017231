package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/stwalsh4118/rentroll/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound            = "NOT_FOUND"
	ErrBadRequest          = "BAD_REQUEST"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
	ErrInvalidUpload       = "INVALID_UPLOAD"
	ErrFileTooLarge        = "FILE_TOO_LARGE"
	ErrProcessingCancelled = "PROCESSING_CANCELLED"
	ErrServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// StatusClientClosedRequest is returned when the client went away before
// processing finished.
const StatusClientClosedRequest = 499

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// respond logs a warning and writes the error body.
func respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("Request rejected", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// InvalidUpload returns a 400 response for a missing or unreadable upload.
func InvalidUpload(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, ErrInvalidUpload, message, nil)
}

// FileTooLarge returns a 413 response naming the upload limit.
func FileTooLarge(c *gin.Context, limit int64) {
	respond(c, http.StatusRequestEntityTooLarge, ErrFileTooLarge,
		fmt.Sprintf("File exceeds the maximum upload size of %d bytes", limit),
		map[string]interface{}{"max_bytes": limit})
}

// ProcessingCancelled returns a 499 response when the request context ended
// before the file was fully processed.
func ProcessingCancelled(c *gin.Context) {
	respond(c, StatusClientClosedRequest, ErrProcessingCancelled, "Processing was cancelled before completion", nil)
}

// ServiceUnavailable returns a 503 response, used by readiness checks.
func ServiceUnavailable(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusServiceUnavailable, ErrServiceUnavailable, message, details)
}

// InternalServerError returns a 500 Internal Server Error response.
// The error is logged but never exposed to the client.
func InternalServerError(c *gin.Context, message string, err error) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrInternalServer,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}
	respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "printascii":
		return "Must contain printable ASCII characters only"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
