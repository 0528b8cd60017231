// Package classifier decides whether a sheet holds unit rows, aggregate
// totals, or something else.
package classifier

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

const (
	// DefaultMinConfidence is the lowest AI confidence accepted by the selector.
	DefaultMinConfidence = 0.5
	// HeuristicScanRows is how many leading rows the heuristic reads.
	HeuristicScanRows = 10
	// MinIndicators is the distinct rent-roll indicator count that marks a rent roll.
	MinIndicators = 3
)

var leadingNoise = regexp.MustCompile(`^[\s\d\-_.:#|/]+`)
var trailingNoise = regexp.MustCompile(`[\s\-_.:#|/]+$`)

// Classifier labels sheets. It never fails: when the AI path is missing or
// unusable the heuristic answers.
type Classifier interface {
	Classify(ctx context.Context, sheetName string, rows [][]models.Cell) models.SheetClassification
}

// HeuristicClassifier classifies from the sheet name and keyword counts.
type HeuristicClassifier struct {
	vocab *vocabulary.Vocabulary
}

// NewHeuristicClassifier creates a keyword-based classifier.
func NewHeuristicClassifier(vocab *vocabulary.Vocabulary) *HeuristicClassifier {
	return &HeuristicClassifier{vocab: vocab}
}

// Classify labels a sheet. Summary-like names win over content; otherwise at
// least MinIndicators distinct rent-roll indicators in the first rows make a
// rent roll.
func (h *HeuristicClassifier) Classify(sheetName string, rows [][]models.Cell) models.SheetClassification {
	name := vocabulary.Normalize(sheetName)
	if _, ok := vocabulary.MatchAny(name, h.vocab.SummarySheetWords); ok {
		return models.SheetClassification{
			Type:       models.SheetSummary,
			Source:     models.SourceHeuristic,
			Confidence: 0.8,
		}
	}

	if len(rows) > HeuristicScanRows {
		rows = rows[:HeuristicScanRows]
	}
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, models.RowText(row))
	}
	text := vocabulary.Normalize(strings.Join(parts, " "))
	hits := vocabulary.CountDistinct(text, h.vocab.RentRollIndicators)

	if hits >= MinIndicators {
		return models.SheetClassification{
			Type:         models.SheetRentRoll,
			PropertyName: h.PropertyName(sheetName),
			Source:       models.SourceHeuristic,
			Confidence:   math.Min(0.95, 0.4+0.1*float64(hits)),
		}
	}
	return models.SheetClassification{
		Type:       models.SheetUnknown,
		Source:     models.SourceHeuristic,
		Confidence: 0.3,
	}
}

// PropertyName derives a property name from a sheet name by dropping generic
// prefixes such as "Sheet" or "Rent Roll" and leading numbering.
func (h *HeuristicClassifier) PropertyName(sheetName string) string {
	name := strings.TrimSpace(sheetName)
	for {
		stripped := false
		lower := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(name))
		for _, prefix := range h.vocab.SheetNamePrefixes {
			if hasWordPrefix(lower, prefix) {
				name = name[len(prefix):]
				stripped = true
				break
			}
		}
		name = leadingNoise.ReplaceAllString(name, "")
		if !stripped {
			break
		}
	}
	return trailingNoise.ReplaceAllString(name, "")
}

func hasWordPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	return len(s) == len(prefix) || !unicode.IsLetter(rune(s[len(prefix)]))
}

// AIClassifier classifies through the model.
type AIClassifier struct {
	analyzer ai.Analyzer
}

// NewAIClassifier creates a model-backed classifier.
func NewAIClassifier(analyzer ai.Analyzer) *AIClassifier {
	return &AIClassifier{analyzer: analyzer}
}

// Classify sends the sheet name and up to ai.ClassifyMaxRows leading rows to the model.
func (a *AIClassifier) Classify(ctx context.Context, sheetName string, rows [][]models.Cell) (models.SheetClassification, error) {
	if len(rows) > ai.ClassifyMaxRows {
		rows = rows[:ai.ClassifyMaxRows]
	}
	resp, err := a.analyzer.ClassifySheet(ctx, sheetName, models.RowStrings(rows))
	if err != nil {
		return models.SheetClassification{}, err
	}
	t := models.SheetType(resp.SheetType)
	if !t.IsValid() {
		return models.SheetClassification{}, fmt.Errorf("%w: sheet type %q", ai.ErrInvalidResponse, resp.SheetType)
	}
	return models.SheetClassification{
		Type:         t,
		PropertyName: strings.TrimSpace(resp.PropertyName),
		Source:       models.SourceAI,
		Confidence:   resp.Confidence,
	}, nil
}

type dualClassifier struct {
	primary       *AIClassifier
	fallback      *HeuristicClassifier
	log           *logger.Logger
	minConfidence float64
}

// NewClassifier creates the selecting classifier. analyzer may be nil, in
// which case only the heuristic runs. A minConfidence of zero or less uses
// DefaultMinConfidence.
func NewClassifier(analyzer ai.Analyzer, vocab *vocabulary.Vocabulary, minConfidence float64, log *logger.Logger) Classifier {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	d := &dualClassifier{
		fallback:      NewHeuristicClassifier(vocab),
		log:           log,
		minConfidence: minConfidence,
	}
	if analyzer != nil {
		d.primary = NewAIClassifier(analyzer)
	}
	return d
}

func (d *dualClassifier) Classify(ctx context.Context, sheetName string, rows [][]models.Cell) models.SheetClassification {
	if d.primary != nil {
		result, err := d.primary.Classify(ctx, sheetName, rows)
		switch {
		case err != nil:
			d.log.Warn("AI sheet classification failed, using heuristic", map[string]interface{}{
				"sheet": sheetName,
				"error": err.Error(),
			})
		case result.Confidence < d.minConfidence:
			d.log.Info("AI sheet classification below confidence threshold, using heuristic", map[string]interface{}{
				"sheet":      sheetName,
				"confidence": result.Confidence,
			})
		default:
			return result
		}
	}

	result := d.fallback.Classify(sheetName, rows)
	d.log.Debug("Sheet classified heuristically", map[string]interface{}{
		"sheet": sheetName,
		"type":  string(result.Type),
	})
	return result
}
