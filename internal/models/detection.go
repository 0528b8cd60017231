package models

import "sort"

// Field is a semantic rent-roll column role.
type Field string

const (
	FieldUnitNumber      Field = "unit_number"
	FieldTenantName      Field = "tenant_name"
	FieldCurrentRent     Field = "current_rent"
	FieldMarketRent      Field = "market_rent"
	FieldSquareFootage   Field = "square_footage"
	FieldFloorPlan       Field = "floor_plan"
	FieldLeaseStart      Field = "lease_start"
	FieldLeaseEnd        Field = "lease_end"
	FieldOccupancyStatus Field = "occupancy_status"
)

// AllFields returns every semantic field in canonical order.
func AllFields() []Field {
	return []Field{
		FieldUnitNumber,
		FieldTenantName,
		FieldCurrentRent,
		FieldMarketRent,
		FieldSquareFootage,
		FieldFloorPlan,
		FieldLeaseStart,
		FieldLeaseEnd,
		FieldOccupancyStatus,
	}
}

// IsValid reports whether f is one of the known fields.
func (f Field) IsValid() bool {
	for _, known := range AllFields() {
		if f == known {
			return true
		}
	}
	return false
}

// ColumnMapping maps semantic fields to 0-based column indexes.
// A field absent from the map is unmapped.
type ColumnMapping map[Field]int

// Set maps field to column, replacing any earlier mapping for the field.
func (m ColumnMapping) Set(field Field, column int) {
	m[field] = column
}

// Column returns the column mapped to field.
func (m ColumnMapping) Column(field Field) (int, bool) {
	col, ok := m[field]
	if !ok || col < 0 {
		return -1, false
	}
	return col, true
}

// Resolved returns the number of mapped fields.
func (m ColumnMapping) Resolved() int {
	n := 0
	for _, col := range m {
		if col >= 0 {
			n++
		}
	}
	return n
}

// Letters returns the mapping with column letters instead of indexes.
func (m ColumnMapping) Letters() map[Field]string {
	out := make(map[Field]string, len(m))
	for field, col := range m {
		if col >= 0 {
			out[field] = ColumnLetter(col)
		}
	}
	return out
}

// Fields returns the mapped fields in canonical order.
func (m ColumnMapping) Fields() []Field {
	var out []Field
	for _, f := range AllFields() {
		if _, ok := m.Column(f); ok {
			out = append(out, f)
		}
	}
	return out
}

// MaxColumn returns the highest mapped column index, or -1.
func (m ColumnMapping) MaxColumn() int {
	cols := make([]int, 0, len(m))
	for _, col := range m {
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return -1
	}
	sort.Ints(cols)
	return cols[len(cols)-1]
}

// DetectionSource records which strategy produced a detection.
type DetectionSource string

const (
	SourceAI        DetectionSource = "ai"
	SourceHeuristic DetectionSource = "heuristic"
	SourceCache     DetectionSource = "cache"
)

// HeaderDetectionResult locates the header row and the column roles of a sheet.
// HeaderRowIndex is -1 when no header row was found.
type HeaderDetectionResult struct {
	Headers           map[string]string `json:"headers"`
	ColumnMapping     ColumnMapping     `json:"columnMapping"`
	Source            DetectionSource   `json:"source"`
	HeaderRowIndex    int               `json:"headerRowIndex"`
	DataStartRowIndex int               `json:"dataStartRowIndex"`
	Confidence        float64           `json:"confidence"`
}

// NoHeader returns the failed detection result.
func NoHeader(source DetectionSource) HeaderDetectionResult {
	return HeaderDetectionResult{
		Headers:           map[string]string{},
		ColumnMapping:     ColumnMapping{},
		Source:            source,
		HeaderRowIndex:    -1,
		DataStartRowIndex: -1,
	}
}

// Found reports whether a header row was located.
func (r HeaderDetectionResult) Found() bool {
	return r.HeaderRowIndex >= 0
}

// SheetType labels what a sheet contains.
type SheetType string

const (
	SheetRentRoll SheetType = "rent_roll"
	SheetSummary  SheetType = "summary"
	SheetUnknown  SheetType = "unknown"
)

// IsValid reports whether t is a known sheet type.
func (t SheetType) IsValid() bool {
	switch t {
	case SheetRentRoll, SheetSummary, SheetUnknown:
		return true
	}
	return false
}

// SheetClassification is the classifier verdict for one sheet.
type SheetClassification struct {
	Type         SheetType       `json:"type"`
	PropertyName string          `json:"propertyName,omitempty"`
	Source       DetectionSource `json:"source"`
	Confidence   float64         `json:"confidence"`
}
