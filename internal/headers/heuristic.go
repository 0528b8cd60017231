// Package headers finds the header row of a rent-roll sheet and maps its
// columns to semantic fields.
package headers

import (
	"math"
	"strings"

	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

const (
	// ScanRows is how many leading rows the heuristic considers as header candidates.
	ScanRows = 10
	// MinFieldMatches is the distinct field count a header row needs.
	MinFieldMatches = 2
	// MaxDataStartSkip bounds how many rows after the header may be skipped.
	MaxDataStartSkip = 5
	// minSubstantiveCells is the non-empty cell count below which a row
	// needs a unit-like identifier to count as data.
	minSubstantiveCells = 2
)

// HeuristicDetector detects headers by keyword matching.
type HeuristicDetector struct {
	vocab *vocabulary.Vocabulary
}

// NewHeuristicDetector creates a keyword-based detector.
func NewHeuristicDetector(vocab *vocabulary.Vocabulary) *HeuristicDetector {
	return &HeuristicDetector{vocab: vocab}
}

// Detect picks, among the first ScanRows rows, the row matching the most
// distinct fields (at least MinFieldMatches, earliest row on ties).
// Confidence is matches / max(number of fields, row length).
func (h *HeuristicDetector) Detect(sheet *models.RawSheet) models.HeaderDetectionResult {
	best := -1
	var bestMapping models.ColumnMapping

	limit := ScanRows
	if sheet.RowCount() < limit {
		limit = sheet.RowCount()
	}
	for i := 0; i < limit; i++ {
		mapping := h.MapRow(sheet.Row(i))
		if mapping.Resolved() < MinFieldMatches {
			continue
		}
		if best < 0 || mapping.Resolved() > bestMapping.Resolved() {
			best = i
			bestMapping = mapping
		}
	}
	if best < 0 {
		return models.NoHeader(models.SourceHeuristic)
	}

	header := sheet.Row(best)
	denominator := math.Max(float64(len(models.AllFields())), float64(len(header)))

	return models.HeaderDetectionResult{
		HeaderRowIndex:    best,
		DataStartRowIndex: h.DataStart(sheet, best, bestMapping),
		Headers:           HeaderLabels(header),
		ColumnMapping:     bestMapping,
		Confidence:        float64(bestMapping.Resolved()) / denominator,
		Source:            models.SourceHeuristic,
	}
}

// MapRow maps each cell of a candidate header row to the field its text best
// matches. Columns are scanned left to right and a later column replaces an
// earlier one mapped to the same field.
func (h *HeuristicDetector) MapRow(row []models.Cell) models.ColumnMapping {
	mapping := models.ColumnMapping{}
	for col, cell := range row {
		if cell.Kind != models.CellText {
			continue
		}
		if field, ok := h.vocab.MatchField(cell.Text); ok {
			mapping.Set(field, col)
		}
	}
	return mapping
}

// DataStart returns the first data row after the header, skipping at most
// MaxDataStartSkip rows that are not data. A row is not data when it is
// blank, repeats the header, has an empty unit-number cell, or is a lone
// label without any digit (a section title such as "Building A").
func (h *HeuristicDetector) DataStart(sheet *models.RawSheet, headerRow int, mapping models.ColumnMapping) int {
	start := headerRow + 1
	for skipped := 0; skipped < MaxDataStartSkip && start < sheet.RowCount(); skipped++ {
		if !h.isNonData(sheet.Row(start), mapping) {
			break
		}
		start++
	}
	return start
}

func (h *HeuristicDetector) isNonData(row []models.Cell, mapping models.ColumnMapping) bool {
	if models.RowIsEmpty(row) || h.IsHeaderLike(row) {
		return true
	}

	unitCol, hasUnit := mapping.Column(models.FieldUnitNumber)
	if hasUnit {
		if unitCol >= len(row) || row[unitCol].IsEmpty() {
			return true
		}
	}

	filled := 0
	for _, c := range row {
		if !c.IsEmpty() {
			filled++
		}
	}
	if filled >= minSubstantiveCells {
		return false
	}
	if hasUnit {
		return !looksLikeUnit(row[unitCol])
	}
	return true
}

// IsHeaderLike reports whether row repeats a header: it carries no numbers
// or dates and its text matches at least MinFieldMatches distinct fields.
// Paginated exports repeat the header row between pages.
func (h *HeuristicDetector) IsHeaderLike(row []models.Cell) bool {
	for _, c := range row {
		if c.Kind == models.CellNumber || c.Kind == models.CellDate {
			return false
		}
	}
	return h.MapRow(row).Resolved() >= MinFieldMatches
}

func looksLikeUnit(c models.Cell) bool {
	if c.Kind == models.CellNumber {
		return true
	}
	return strings.ContainsAny(c.String(), "0123456789")
}

// HeaderLabels returns the non-empty header cells keyed by column letter.
func HeaderLabels(row []models.Cell) map[string]string {
	out := make(map[string]string, len(row))
	for col, c := range row {
		if c.IsEmpty() {
			continue
		}
		out[models.ColumnLetter(col)] = c.String()
	}
	return out
}
