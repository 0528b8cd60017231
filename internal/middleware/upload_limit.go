package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// MaxUploadBytesHeader advertises the upload limit on every guarded response.
const MaxUploadBytesHeader = "X-Max-Upload-Bytes"

// UploadLimit caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are rejected immediately; streamed bodies are cut off
// by http.MaxBytesReader and surface as *http.MaxBytesError when read.
func UploadLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		// Set before any early return so rejected clients learn the limit too
		c.Header(MaxUploadBytesHeader, strconv.FormatInt(limit, 10))

		// A declared oversize body is refused without reading a byte
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": gin.H{
					"code":       "FILE_TOO_LARGE",
					"message":    fmt.Sprintf("File exceeds the maximum upload size of %d bytes", limit),
					"details":    gin.H{"max_bytes": limit},
					"request_id": GetRequestID(c),
				},
			})
			return
		}

		// Chunked or lying clients are stopped while the handler reads
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from a body cut off by UploadLimit.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
