package extractor

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/xuri/excelize/v2"
)

// Excel serials outside this range are not treated as dates
// (roughly 1954-10-03 to 2119-01-11).
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

// dateLayouts are the text date layouts accepted for lease dates.
var dateLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"1-2-06",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"02-Jan-06",
	"Jan-06",
}

var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "", "\u00a0", "")

// ParseNumber coerces a cell to a number. Text has currency symbols,
// separators and whitespace stripped; parentheses mark a negative amount.
// Anything unparseable yields nil.
func ParseNumber(c models.Cell) *float64 {
	switch c.Kind {
	case models.CellNumber:
		v := c.Number
		return &v
	case models.CellText:
		s := numberCleaner.Replace(strings.TrimSpace(c.Text))
		negative := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = true
			s = s[1 : len(s)-1]
		}
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		if negative {
			v = -v
		}
		return &v
	default:
		return nil
	}
}

// ParseNonNegative is ParseNumber for quantities that cannot go below zero;
// a negative value is treated as unparseable.
func ParseNonNegative(c models.Cell) *float64 {
	v := ParseNumber(c)
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// ParseDate coerces a cell to a date. Date cells pass through, numbers in
// the Excel serial range are converted, and text is tried against the known
// layouts. Anything else yields nil.
func ParseDate(c models.Cell) *time.Time {
	switch c.Kind {
	case models.CellDate:
		t := c.Date
		return &t
	case models.CellNumber:
		if c.Number < minExcelSerial || c.Number > maxExcelSerial {
			return nil
		}
		t, err := excelize.ExcelDateToTime(c.Number, false)
		if err != nil {
			return nil
		}
		t = t.Truncate(24 * time.Hour)
		return &t
	case models.CellText:
		s := strings.TrimSpace(c.Text)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseDate(models.NumberCell(n))
		}
		return nil
	default:
		return nil
	}
}

// ParseText renders a cell as trimmed text.
func ParseText(c models.Cell) string {
	return strings.TrimSpace(c.String())
}
