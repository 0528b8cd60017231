package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/stwalsh4118/rentroll/internal/errors"
	"github.com/stwalsh4118/rentroll/internal/middleware"
	"github.com/stwalsh4118/rentroll/internal/services"
)

// RentRollHandler handles rent-roll upload requests.
type RentRollHandler struct {
	service        services.IngestService
	maxUploadBytes int64
}

// NewRentRollHandler creates a new RentRollHandler. maxUploadBytes is only
// reported back to clients; the limit itself is enforced by
// middleware.UploadLimit.
func NewRentRollHandler(service services.IngestService, maxUploadBytes int64) *RentRollHandler {
	return &RentRollHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// ProcessRequest is the multipart form of the process endpoint.
type ProcessRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
	// MimeType overrides the part's Content-Type header.
	MimeType string `form:"mime_type" binding:"omitempty,max=255,printascii"`
}

// Process handles POST /api/v1/rent-rolls/process.
// Problems inside the file are reported in the result's errors with a 200;
// only malformed requests, oversized bodies and cancellations are HTTP errors.
func (h *RentRollHandler) Process(c *gin.Context) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		apierrors.InvalidUpload(c, "Request must be multipart/form-data with a file field")
		return
	}

	var req ProcessRequest
	if err := c.ShouldBind(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			apierrors.FileTooLarge(c, h.maxUploadBytes)
			return
		}
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.InvalidUpload(c, "Request must be multipart/form-data with a file field")
		return
	}

	data, err := readUpload(req.File)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			apierrors.FileTooLarge(c, h.maxUploadBytes)
			return
		}
		apierrors.InvalidUpload(c, "Uploaded file could not be read")
		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = req.File.Header.Get("Content-Type")
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Processing rent roll upload", map[string]interface{}{
			"file_name": req.File.Filename,
			"file_size": len(data),
			"mime_type": mimeType,
		})
	}

	result, err := h.service.Process(c.Request.Context(), services.Upload{
		FileName: req.File.Filename,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		if errors.Is(err, services.ErrProcessingCancelled) {
			apierrors.ProcessingCancelled(c)
			return
		}
		apierrors.InternalServerError(c, "Failed to process rent roll", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
