package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets the configured origins upload rent rolls from the browser.
// Browsers only send multipart bodies cross-origin after a preflight, and a
// client reads X-Max-Upload-Bytes to check a file before sending it.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		// Uploads are POSTs; everything else is read-only
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", RequestIDHeader},
		// Exposed so browser clients can correlate failures and size uploads
		ExposeHeaders:    []string{RequestIDHeader, MaxUploadBytesHeader},
		AllowCredentials: true,
		// Preflights for a large upload page are cached for half a day
		MaxAge: 12 * time.Hour,
	})
}
