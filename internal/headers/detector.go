package headers

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

const (
	// DefaultAIAcceptConfidence is the AI confidence that must be exceeded
	// for its answer to be used.
	DefaultAIAcceptConfidence = 0.7
	// MinConfidence is the lowest detection confidence a sheet may proceed with.
	MinConfidence = 0.3
)

// Detector finds headers. It never fails: a sheet without a recognizable
// header yields a result whose HeaderRowIndex is -1.
type Detector interface {
	Detect(ctx context.Context, sheet *models.RawSheet) models.HeaderDetectionResult
}

// AIDetector detects headers through the model.
type AIDetector struct {
	analyzer ai.Analyzer
}

// NewAIDetector creates a model-backed detector.
func NewAIDetector(analyzer ai.Analyzer) *AIDetector {
	return &AIDetector{analyzer: analyzer}
}

// Detect sends up to ai.DetectMaxRows leading rows to the model and converts
// its 1-based rows and column letters to 0-based indexes.
func (a *AIDetector) Detect(ctx context.Context, sheet *models.RawSheet) (models.HeaderDetectionResult, error) {
	rows := sheet.Head(ai.DetectMaxRows)
	resp, err := a.analyzer.DetectHeaders(ctx, sheet.Name, models.RowStrings(rows))
	if err != nil {
		return models.HeaderDetectionResult{}, err
	}

	header := resp.HeaderRow - 1
	if header < 0 || header >= sheet.RowCount() {
		return models.HeaderDetectionResult{}, fmt.Errorf("%w: header row %d outside sheet", ai.ErrInvalidResponse, resp.HeaderRow)
	}
	dataStart := resp.DataStartRow - 1
	if dataStart <= header {
		dataStart = header + 1
	}

	mapping := models.ColumnMapping{}
	for name, letter := range resp.ColumnMapping {
		field := models.Field(name)
		if !field.IsValid() {
			continue
		}
		col, err := models.ColumnIndex(letter)
		if err != nil {
			continue
		}
		mapping.Set(field, col)
	}

	return models.HeaderDetectionResult{
		HeaderRowIndex:    header,
		DataStartRowIndex: dataStart,
		Headers:           HeaderLabels(sheet.Row(header)),
		ColumnMapping:     mapping,
		Confidence:        resp.Confidence,
		Source:            models.SourceAI,
	}, nil
}

type dualDetector struct {
	primary     *AIDetector
	fallback    *HeuristicDetector
	log         *logger.Logger
	acceptAbove float64
}

// NewDetector creates the selecting detector. analyzer may be nil, in which
// case only the heuristic runs. An acceptAbove of zero or less uses
// DefaultAIAcceptConfidence.
func NewDetector(analyzer ai.Analyzer, vocab *vocabulary.Vocabulary, acceptAbove float64, log *logger.Logger) Detector {
	if acceptAbove <= 0 {
		acceptAbove = DefaultAIAcceptConfidence
	}
	d := &dualDetector{
		fallback:    NewHeuristicDetector(vocab),
		log:         log,
		acceptAbove: acceptAbove,
	}
	if analyzer != nil {
		d.primary = NewAIDetector(analyzer)
	}
	return d
}

func (d *dualDetector) Detect(ctx context.Context, sheet *models.RawSheet) models.HeaderDetectionResult {
	if d.primary != nil {
		result, err := d.primary.Detect(ctx, sheet)
		switch {
		case err != nil:
			d.log.Warn("AI header detection failed, using heuristic", map[string]interface{}{
				"sheet": sheet.Name,
				"error": err.Error(),
			})
		case result.Confidence <= d.acceptAbove:
			d.log.Info("AI header detection below confidence threshold, using heuristic", map[string]interface{}{
				"sheet":      sheet.Name,
				"confidence": result.Confidence,
			})
		case result.ColumnMapping.Resolved() == 0:
			d.log.Info("AI header detection mapped no columns, using heuristic", map[string]interface{}{
				"sheet": sheet.Name,
			})
		default:
			return result
		}
	}

	result := d.fallback.Detect(sheet)
	d.log.Debug("Headers detected heuristically", map[string]interface{}{
		"sheet":      sheet.Name,
		"header_row": result.HeaderRowIndex,
		"confidence": result.Confidence,
	})
	return result
}

var (
	// ErrHeaderNotFound means no row looked like a header.
	ErrHeaderNotFound = errors.New("could not detect header row")
	// ErrLowConfidence means a header was found but not trusted.
	ErrLowConfidence = errors.New("header detection confidence too low")
)

// GateError is a detection rejected for one sheet.
type GateError struct {
	Sheet      string
	Confidence float64
	Err        error
}

// Reason describes the rejection without the sheet name.
func (e *GateError) Reason() string {
	if errors.Is(e.Err, ErrLowConfidence) {
		return fmt.Sprintf("%s (%.0f%%)", e.Err, e.Confidence*100)
	}
	return e.Err.Error()
}

func (e *GateError) Error() string {
	return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Reason())
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// Gate reports why a detection result must not proceed to extraction, or
// nil when it may. A rejection is a *GateError.
func Gate(sheetName string, result models.HeaderDetectionResult, minConfidence float64) error {
	if !result.Found() {
		return &GateError{Sheet: sheetName, Confidence: result.Confidence, Err: ErrHeaderNotFound}
	}
	if result.Confidence < minConfidence {
		return &GateError{Sheet: sheetName, Confidence: result.Confidence, Err: ErrLowConfidence}
	}
	return nil
}
