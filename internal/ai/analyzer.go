package ai

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"golang.org/x/time/rate"
)

// Row limits sent to the model.
const (
	ClassifyMaxRows = 20
	DetectMaxRows   = 100
	maxCellChars    = 60
)

const schemaBaseURL = "https://rentroll.schemas.local/ai/"

// ErrInvalidResponse is returned when the model output carries no JSON
// object or the object does not conform to the response schema.
var ErrInvalidResponse = errors.New("ai: invalid response")

//go:embed schemas/*.json
var schemaFS embed.FS

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// SheetClassification is the model verdict on what a sheet contains.
type SheetClassification struct {
	SheetType    string  `json:"sheetType"`
	PropertyName string  `json:"propertyName"`
	Confidence   float64 `json:"confidence"`
}

// HeaderDetection is the model answer for header location and column roles.
// Rows are 1-based; ColumnMapping maps field names to column letters.
type HeaderDetection struct {
	ColumnMapping map[string]string `json:"columnMapping"`
	HeaderRow     int               `json:"headerRow"`
	DataStartRow  int               `json:"dataStartRow"`
	Confidence    float64           `json:"confidence"`
}

// Analyzer asks the model about sheets.
type Analyzer interface {
	// ClassifySheet labels a sheet from its name and leading rows.
	ClassifySheet(ctx context.Context, sheetName string, rows [][]string) (*SheetClassification, error)

	// DetectHeaders locates the header row and maps columns to fields.
	DetectHeaders(ctx context.Context, sheetName string, rows [][]string) (*HeaderDetection, error)
}

// AnalyzerOptions tunes call pacing.
type AnalyzerOptions struct {
	// RequestsPerMinute caps model calls; zero or less disables the cap.
	RequestsPerMinute int
	// Timeout bounds each model call.
	Timeout time.Duration
}

type analyzer struct {
	completer      Completer
	limiter        *rate.Limiter
	log            *logger.Logger
	classifySchema *jsonschema.Schema
	headerSchema   *jsonschema.Schema
	classifyRaw    json.RawMessage
	headerRaw      json.RawMessage
	timeout        time.Duration
}

// NewAnalyzer creates a new Analyzer on top of a Completer.
func NewAnalyzer(completer Completer, opts AnalyzerOptions, log *logger.Logger) (Analyzer, error) {
	classifyRaw, classifySchema, err := loadSchema("sheet_classification.json")
	if err != nil {
		return nil, err
	}
	headerRaw, headerSchema, err := loadSchema("header_detection.json")
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &analyzer{
		completer:      completer,
		limiter:        rate.NewLimiter(limit, 1),
		log:            log,
		classifySchema: classifySchema,
		headerSchema:   headerSchema,
		classifyRaw:    classifyRaw,
		headerRaw:      headerRaw,
		timeout:        opts.Timeout,
	}, nil
}

func loadSchema(name string) (json.RawMessage, *jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, nil, fmt.Errorf("ai: read schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := schemaBaseURL + name
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, nil, fmt.Errorf("ai: load schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, nil, fmt.Errorf("ai: compile schema %s: %w", name, err)
	}
	return json.RawMessage(raw), compiled, nil
}

// ClassifySheet labels a sheet from its name and leading rows.
func (a *analyzer) ClassifySheet(ctx context.Context, sheetName string, rows [][]string) (*SheetClassification, error) {
	prompt := Prompt{
		SchemaName: "sheet_classification",
		Schema:     a.classifyRaw,
		Messages: []Message{
			{Role: "system", Content: classifyInstructions},
			{Role: "user", Content: fmt.Sprintf("Sheet name: %q\n\n%s", sheetName, RenderRows(rows, ClassifyMaxRows))},
		},
	}

	var out SheetClassification
	if err := a.ask(ctx, prompt, a.classifySchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectHeaders locates the header row and maps columns to fields.
func (a *analyzer) DetectHeaders(ctx context.Context, sheetName string, rows [][]string) (*HeaderDetection, error) {
	prompt := Prompt{
		SchemaName: "header_detection",
		Schema:     a.headerRaw,
		Messages: []Message{
			{Role: "system", Content: headerInstructions},
			{Role: "user", Content: fmt.Sprintf("Sheet name: %q\n\n%s", sheetName, RenderRows(rows, DetectMaxRows))},
		},
	}

	var out HeaderDetection
	if err := a.ask(ctx, prompt, a.headerSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *analyzer) ask(ctx context.Context, prompt Prompt, schema *jsonschema.Schema, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ai: rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()
	text, err := a.completer.Complete(callCtx, prompt)
	if err != nil {
		return err
	}
	a.log.Debug("AI response received", map[string]interface{}{
		"schema":      prompt.SchemaName,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// ExtractJSON returns the outermost JSON object found in model output,
// tolerating code fences and surrounding prose.
func ExtractJSON(text string) ([]byte, error) {
	match := jsonObject.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrInvalidResponse)
	}
	return []byte(match), nil
}

// RenderRows formats leading rows as a pipe table with 1-based row numbers
// and column letters.
func RenderRows(rows [][]string, limit int) string {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var b strings.Builder
	b.WriteString("Row")
	for c := 0; c < width; c++ {
		b.WriteString(" | ")
		b.WriteString(models.ColumnLetter(c))
	}
	b.WriteByte('\n')
	for i, r := range rows {
		fmt.Fprintf(&b, "%d", i+1)
		for c := 0; c < width; c++ {
			b.WriteString(" | ")
			if c < len(r) {
				b.WriteString(clip(r[c]))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxCellChars {
		return string(r[:maxCellChars]) + "..."
	}
	return s
}

const classifyInstructions = `You classify worksheets from property management exports.
Answer with one JSON object: {"sheetType": "rent_roll" | "summary" | "unknown", "propertyName": string, "confidence": number between 0 and 1}.
A rent_roll lists one row per unit with columns such as unit, tenant, rent, lease dates or status.
A summary aggregates totals or occupancy statistics. Use "unknown" for anything else.
propertyName is the property the sheet describes, or "" when it cannot be told.`

const headerInstructions = `You locate the header row of a rent roll worksheet and map its columns.
Rows are numbered from 1; columns are lettered A, B, C...
Answer with one JSON object: {"headerRow": int, "dataStartRow": int, "columnMapping": {field: column letter}, "confidence": number between 0 and 1}.
Allowed fields: unit_number, tenant_name, current_rent, market_rent, square_footage, floor_plan, lease_start, lease_end, occupancy_status.
Only map fields that are present. dataStartRow is the first row holding unit data.`
