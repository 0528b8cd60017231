package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/classifier"
	"github.com/stwalsh4118/rentroll/internal/decoder"
	"github.com/stwalsh4118/rentroll/internal/extractor"
	"github.com/stwalsh4118/rentroll/internal/headers"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/summary"
	"github.com/stwalsh4118/rentroll/internal/telemetry"
	"github.com/stwalsh4118/rentroll/internal/tenants"
)

// Service-level errors
var (
	ErrProcessingCancelled = errors.New("processing cancelled")
	ErrNoRentRollData      = errors.New("no rent roll data found in file")
)

// Upload is one file handed to the pipeline.
type Upload struct {
	// Progress, when set, receives per-row progress for each extracted sheet.
	Progress func(sheetName string, processed, total int)
	FileName string
	MimeType string
	Data     []byte
}

// IngestService runs the rent-roll pipeline on uploaded files.
type IngestService interface {
	// Process decodes the upload and runs every sheet through classification,
	// header detection and extraction. File-level, sheet-level and row-level
	// problems are reported in the result's Errors; the returned error is
	// non-nil only when ctx is cancelled, wrapping ErrProcessingCancelled.
	Process(ctx context.Context, upload Upload) (*models.ProcessingResult, error)
}

// IngestDeps are the pipeline stages and collaborators.
// Cache and Metrics may be nil.
type IngestDeps struct {
	Decoder    decoder.Decoder
	Classifier classifier.Classifier
	Detector   headers.Detector
	Extractor  extractor.Extractor
	Converter  tenants.Converter
	Cache      cache.Cache
	Metrics    *telemetry.Metrics
}

// IngestOptions tune the pipeline.
type IngestOptions struct {
	// HeaderMinConfidence rejects sheets whose header detection scored lower.
	HeaderMinConfidence float64
	// AIEnabled marks heuristic detections as fallbacks in metrics.
	AIEnabled bool
}

// ingestService is the concrete implementation of IngestService.
type ingestService struct {
	deps IngestDeps
	opts IngestOptions
	log  *logger.Logger
	now  func() time.Time
}

// NewIngestService creates a new instance of IngestService.
func NewIngestService(deps IngestDeps, opts IngestOptions, log *logger.Logger) IngestService {
	if deps.Cache == nil {
		deps.Cache = cache.NewNop()
	}
	if opts.HeaderMinConfidence <= 0 {
		opts.HeaderMinConfidence = headers.MinConfidence
	}
	return &ingestService{
		deps: deps,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

func (s *ingestService) Process(ctx context.Context, upload Upload) (*models.ProcessingResult, error) {
	start := s.now()
	log := s.log.WithFile(upload.FileName, len(upload.Data))

	result := &models.ProcessingResult{
		Sheets:           []models.ProcessedSheet{},
		ExtractedTenants: []models.ExtractedTenantData{},
		Errors:           []string{},
	}
	finish := func() *models.ProcessingResult {
		result.Summary = summary.Combine(result.Sheets)
		result.Success = len(result.Sheets) > 0 && len(result.ExtractedTenants) > 0
		elapsed := s.now().Sub(start)
		result.ProcessingTimeMs = elapsed.Milliseconds()
		s.deps.Metrics.RecordFile(ctx, result.Success, elapsed)
		return result
	}

	raw, err := s.deps.Decoder.Decode(ctx, upload.Data, upload.FileName, upload.MimeType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(), fmt.Errorf("%w: %w", ErrProcessingCancelled, ctxErr)
		}
		log.Warn("File rejected", map[string]interface{}{
			"error": err.Error(),
		})
		result.Errors = append(result.Errors, err.Error())
		return finish(), nil
	}

	for i := range raw.Sheets {
		if err := ctx.Err(); err != nil {
			log.Warn("Processing cancelled", map[string]interface{}{
				"sheets_done": i,
			})
			return finish(), fmt.Errorf("%w: %w", ErrProcessingCancelled, err)
		}

		sheet := &raw.Sheets[i]
		processed, sheetErr := s.processSheet(ctx, upload, sheet, log.WithSheet(sheet.Name, i))
		if sheetErr != nil {
			result.Errors = append(result.Errors, sheetMessage(sheet.Name, sheetErr))
			s.deps.Metrics.RecordSheet(ctx, telemetry.SheetSkipped)
			continue
		}
		if processed == nil {
			s.deps.Metrics.RecordSheet(ctx, telemetry.SheetSkipped)
			continue
		}

		s.deps.Metrics.RecordSheet(ctx, telemetry.SheetProcessed)
		for _, rowErr := range processed.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("Sheet %q: %s", sheet.Name, rowErr))
		}
		result.Sheets = append(result.Sheets, *processed)
	}

	if len(result.Sheets) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, ErrNoRentRollData.Error())
	}

	result.ExtractedTenants = s.deps.Converter.Convert(result.Sheets)

	res := finish()
	log.Info("File processed", map[string]interface{}{
		"sheets":   len(res.Sheets),
		"tenants":  len(res.ExtractedTenants),
		"errors":   len(res.Errors),
		"success":  res.Success,
		"duration": res.ProcessingTimeMs,
	})
	return res, nil
}

// processSheet returns nil without error for sheets that are skipped on
// purpose (summary sheets), and an error naming the sheet when detection
// rejects it.
func (s *ingestService) processSheet(ctx context.Context, upload Upload, sheet *models.RawSheet, log *logger.Logger) (*models.ProcessedSheet, error) {
	leading := models.RowStrings(sheet.Head(cache.KeyRows))

	classification := s.classify(ctx, upload, sheet, leading, log)
	if classification.Type == models.SheetSummary {
		log.Info("Skipping summary sheet", map[string]interface{}{
			"source": string(classification.Source),
		})
		return nil, nil
	}

	detection := s.detectHeaders(ctx, upload, sheet, leading, log)
	if err := headers.Gate(sheet.Name, detection, s.opts.HeaderMinConfidence); err != nil {
		log.Warn("Skipping sheet", map[string]interface{}{
			"reason":     err.Error(),
			"confidence": detection.Confidence,
			"source":     string(detection.Source),
		})
		return nil, err
	}

	var progress extractor.ProgressFunc
	if upload.Progress != nil {
		progress = func(done, total int) { upload.Progress(sheet.Name, done, total) }
	}
	extraction := s.deps.Extractor.Extract(sheet, detection, progress)
	s.deps.Metrics.RecordExtraction(ctx, len(extraction.Data), len(extraction.Errors))

	log.Info("Sheet extracted", map[string]interface{}{
		"units":      len(extraction.Data),
		"row_errors": len(extraction.Errors),
		"header_row": detection.HeaderRowIndex,
	})

	return &models.ProcessedSheet{
		Headers:        detection,
		Classification: classification,
		SheetName:      sheet.Name,
		Data:           extraction.Data,
		Errors:         extraction.Errors,
		Summary:        extraction.Summary,
		SheetIndex:     sheet.Index,
	}, nil
}

func (s *ingestService) classify(ctx context.Context, upload Upload, sheet *models.RawSheet, leading [][]string, log *logger.Logger) models.SheetClassification {
	key := cache.Key(cache.OpClassify, upload.FileName, len(upload.Data), leading)

	var result models.SheetClassification
	if s.lookup(ctx, key, &result, log) && result.Type.IsValid() {
		result.Source = models.SourceCache
	} else {
		result = s.deps.Classifier.Classify(ctx, sheet.Name, sheet.Head(ai.ClassifyMaxRows))
		if result.Source == models.SourceAI {
			s.store(ctx, key, result, log)
		}
	}

	s.deps.Metrics.RecordDetection(ctx, telemetry.StageClassify, result.Source, s.opts.AIEnabled)
	return result
}

func (s *ingestService) detectHeaders(ctx context.Context, upload Upload, sheet *models.RawSheet, leading [][]string, log *logger.Logger) models.HeaderDetectionResult {
	key := cache.Key(cache.OpHeaders, upload.FileName, len(upload.Data), leading)

	var result models.HeaderDetectionResult
	if s.lookup(ctx, key, &result, log) && result.Found() && result.HeaderRowIndex < sheet.RowCount() {
		result.Source = models.SourceCache
	} else {
		result = s.deps.Detector.Detect(ctx, sheet)
		if result.Source == models.SourceAI {
			s.store(ctx, key, result, log)
		}
	}

	s.deps.Metrics.RecordDetection(ctx, telemetry.StageHeaders, result.Source, s.opts.AIEnabled)
	return result
}

// lookup decodes a cached value into out. Backend and decode failures are
// logged and treated as a miss.
func (s *ingestService) lookup(ctx context.Context, key string, out interface{}, log *logger.Logger) bool {
	data, ok, err := s.deps.Cache.Get(ctx, key)
	if err != nil {
		log.Warn("Cache lookup failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn("Discarding unreadable cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (s *ingestService) store(ctx context.Context, key string, value interface{}, log *logger.Logger) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn("Failed to encode cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if err := s.deps.Cache.Put(ctx, key, data); err != nil {
		log.Warn("Cache store failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// sheetMessage renders a sheet-level rejection for the result's errors.
func sheetMessage(sheetName string, err error) string {
	var gateErr *headers.GateError
	if errors.As(err, &gateErr) {
		return fmt.Sprintf("Sheet %q: %s", gateErr.Sheet, gateErr.Reason())
	}
	return fmt.Sprintf("Sheet %q: %v", sheetName, err)
}
