// Package extractor turns the data rows of a rent-roll sheet into validated
// unit records.
package extractor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stwalsh4118/rentroll/internal/headers"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/summary"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

// ErrNoColumnMappings is reported when a detection resolved no fields.
var ErrNoColumnMappings = errors.New("no column mappings found")

// ProgressFunc receives the number of rows handled so far and the number of
// rows to handle. It is called synchronously after every row.
type ProgressFunc func(processed, total int)

// Extractor extracts unit records from a sheet.
type Extractor interface {
	// Extract walks the rows from detection.DataStartRowIndex to the end of
	// the sheet. Empty rows, summary rows, repeated header rows and rows
	// without a unit number are skipped silently; rows that fail validation or panic are reported as
	// "Row N: ..." errors with N the 1-based sheet row.
	Extract(sheet *models.RawSheet, detection models.HeaderDetectionResult, progress ProgressFunc) models.ExtractionResult
}

type rowBuilder func(row []models.Cell, mapping models.ColumnMapping) (*models.RentRollUnit, error)

type extractor struct {
	vocab    *vocabulary.Vocabulary
	headers  *headers.HeuristicDetector
	validate *validator.Validate
	trans    ut.Translator
	log      *logger.Logger
	build    rowBuilder
}

// NewExtractor creates a new Extractor.
func NewExtractor(vocab *vocabulary.Vocabulary, log *logger.Logger) Extractor {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		log.Warn("Failed to register validation translations", map[string]interface{}{
			"error": err.Error(),
		})
	}

	e := &extractor{
		vocab:    vocab,
		headers:  headers.NewHeuristicDetector(vocab),
		validate: validate,
		trans:    trans,
		log:      log,
	}
	e.build = e.buildUnit
	return e
}

func (e *extractor) Extract(sheet *models.RawSheet, detection models.HeaderDetectionResult, progress ProgressFunc) models.ExtractionResult {
	result := models.ExtractionResult{
		Data:   []models.RentRollUnit{},
		Errors: []string{},
	}

	mapping := detection.ColumnMapping
	if mapping.Resolved() == 0 {
		result.Errors = append(result.Errors, ErrNoColumnMappings.Error())
		result.Summary = summary.Summarize(nil)
		return result
	}

	start := detection.DataStartRowIndex
	if start <= detection.HeaderRowIndex {
		start = detection.HeaderRowIndex + 1
	}
	if start < 0 {
		start = 0
	}
	total := sheet.RowCount() - start
	if total < 0 {
		total = 0
	}

	skipped := 0
	for i := start; i < sheet.RowCount(); i++ {
		unit, err := e.safeBuild(sheet.Row(i), mapping)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		case unit == nil:
			skipped++
		default:
			result.Data = append(result.Data, *unit)
		}
		if progress != nil {
			progress(i-start+1, total)
		}
	}

	result.Summary = summary.Summarize(result.Data)

	e.log.Debug("Sheet rows extracted", map[string]interface{}{
		"sheet":   sheet.Name,
		"units":   len(result.Data),
		"skipped": skipped,
		"errors":  len(result.Errors),
	})
	return result
}

func (e *extractor) safeBuild(row []models.Cell, mapping models.ColumnMapping) (unit *models.RentRollUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			unit = nil
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	return e.build(row, mapping)
}

// buildUnit returns nil without error for rows that are noise.
func (e *extractor) buildUnit(row []models.Cell, mapping models.ColumnMapping) (*models.RentRollUnit, error) {
	if models.RowIsEmpty(row) {
		return nil, nil
	}
	if e.vocab.IsExcluded(models.RowText(row)) {
		return nil, nil
	}
	// Paginated exports repeat the header between pages.
	if e.headers.IsHeaderLike(row) {
		return nil, nil
	}

	unitNumber := ParseText(field(row, mapping, models.FieldUnitNumber))
	if unitNumber == "" || e.vocab.IsExcluded(unitNumber) {
		return nil, nil
	}

	tenant := ParseText(field(row, mapping, models.FieldTenantName))
	if e.vocab.IsTenantPlaceholder(tenant) {
		tenant = ""
	}

	_, hasStatus := mapping.Column(models.FieldOccupancyStatus)
	_, hasTenant := mapping.Column(models.FieldTenantName)
	status := ParseText(field(row, mapping, models.FieldOccupancyStatus))

	unit := &models.RentRollUnit{
		UnitNumber:      unitNumber,
		TenantName:      tenant,
		CurrentRent:     ParseNumber(field(row, mapping, models.FieldCurrentRent)),
		MarketRent:      ParseNonNegative(field(row, mapping, models.FieldMarketRent)),
		SquareFootage:   ParseNonNegative(field(row, mapping, models.FieldSquareFootage)),
		FloorPlan:       ParseText(field(row, mapping, models.FieldFloorPlan)),
		LeaseStart:      ParseDate(field(row, mapping, models.FieldLeaseStart)),
		LeaseEnd:        ParseDate(field(row, mapping, models.FieldLeaseEnd)),
		OccupancyStatus: InferOccupancy(e.vocab, status, hasStatus, tenant, hasTenant),
	}

	if err := e.validate.Struct(unit); err != nil {
		return nil, e.describe(err)
	}
	return unit, nil
}

func (e *extractor) describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(e.trans))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func field(row []models.Cell, mapping models.ColumnMapping, f models.Field) models.Cell {
	col, ok := mapping.Column(f)
	if !ok || col >= len(row) {
		return models.NullCell()
	}
	return row[col]
}
