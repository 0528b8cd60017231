package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-date layout used for every serialized date.
const DateLayout = "2006-01-02"

// CellKind identifies which variant of Cell is populated.
type CellKind uint8

const (
	CellNull CellKind = iota
	CellNumber
	CellDate
	CellText
)

// String returns the lowercase name of the kind.
func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellDate:
		return "date"
	case CellText:
		return "text"
	default:
		return "null"
	}
}

// Cell is a loosely-typed spreadsheet value. It is a closed union: exactly one
// of Number, Date or Text is meaningful, selected by Kind.
type Cell struct {
	Date   time.Time
	Text   string
	Number float64
	Kind   CellKind
}

// NullCell returns an empty cell.
func NullCell() Cell { return Cell{Kind: CellNull} }

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell { return Cell{Kind: CellNumber, Number: f} }

// DateCell returns a date cell.
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Date: t} }

// TextCell returns a text cell. Whitespace-only text collapses to a null cell.
func TextCell(s string) Cell {
	s = strings.TrimSpace(s)
	if s == "" {
		return NullCell()
	}
	return Cell{Kind: CellText, Text: s}
}

// IsEmpty reports whether the cell carries no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellNull || (c.Kind == CellText && strings.TrimSpace(c.Text) == "")
}

// String renders the cell the way it would read in a spreadsheet.
// Null cells render as the empty string.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDate:
		return c.Date.Format(DateLayout)
	case CellText:
		return c.Text
	default:
		return ""
	}
}

// MarshalJSON encodes the cell as null, a JSON number, an ISO date string or a string.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellNumber:
		return json.Marshal(c.Number)
	case CellDate:
		return json.Marshal(c.Date.Format(DateLayout))
	case CellText:
		return json.Marshal(c.Text)
	default:
		return []byte("null"), nil
	}
}
