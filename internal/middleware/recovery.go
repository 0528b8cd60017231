package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/stwalsh4118/rentroll/internal/logger"
)

// Recovery creates a middleware that recovers from panics in handlers and
// answers with a 500 in the standard error envelope. A panic with
// http.ErrAbortHandler means the client went away mid-upload; it is logged
// and re-raised so net/http drops the connection.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			requestID := GetRequestID(c)

			// Prefer the request-scoped logger so the line carries the request id
			requestLogger := GetLogger(c)
			if requestLogger == nil {
				requestLogger = log
			}

			err, ok := recovered.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", recovered)
			}
			fields := map[string]interface{}{
				"request_id":     requestID,
				"method":         c.Request.Method,
				"path":           c.Request.URL.Path,
				"content_length": c.Request.ContentLength,
			}

			// Nobody is listening; leave the connection to net/http
			if errors.Is(err, http.ErrAbortHandler) {
				requestLogger.Warn("Client aborted request", fields)
				c.Abort()
				panic(recovered)
			}

			fields["stack"] = string(debug.Stack())
			requestLogger.Error("Panic recovered", err, fields)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":       "INTERNAL_SERVER_ERROR",
					"message":    "An unexpected error occurred",
					"request_id": requestID,
				},
			})
		}()

		c.Next()
	}
}
