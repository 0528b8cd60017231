package decoder

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/xuri/excelize/v2"
)

// formattedDate matches the rendered text of a date-formatted cell,
// e.g. "01-15-24", "1/15/2024", "2024-01-15" or "15-Jan-24".
var formattedDate = regexp.MustCompile(
	`^(\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}|\d{1,2}[\- ]?(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[\- ,]*\d{2,4}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[\- ]\d{1,2},? ?\d{2,4})`,
)

func decodeWorkbook(data []byte) ([]models.RawSheet, error) {
	if isLegacyWorkbook(data) {
		return decodeLegacyWorkbook(data)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	names := f.GetSheetList()
	sheets := make([]models.RawSheet, 0, len(names))
	for idx, name := range names {
		formatted, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrWorkbook, name, err)
		}
		raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrWorkbook, name, err)
		}

		rows := make([][]models.Cell, len(formatted))
		for r, frow := range formatted {
			var rrow []string
			if r < len(raw) {
				rrow = raw[r]
			}
			row := make([]models.Cell, len(frow))
			for c, text := range frow {
				rawText := text
				if c < len(rrow) {
					rawText = rrow[c]
				}
				row[c] = workbookCell(text, rawText, date1904)
			}
			rows[r] = row
		}

		sheets = append(sheets, models.RawSheet{
			Name:  name,
			Index: idx,
			Rows:  rows,
		})
	}
	return sheets, nil
}

// workbookCell types one worksheet cell from its rendered and raw values.
func workbookCell(formatted, raw string, date1904 bool) models.Cell {
	formatted = strings.TrimSpace(formatted)
	raw = strings.TrimSpace(raw)
	if formatted == "" && raw == "" {
		return models.NullCell()
	}

	upper := strings.ToUpper(formatted)
	if (upper == "TRUE" || upper == "FALSE") && (raw == "1" || raw == "0") {
		return models.TextCell(upper)
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.TextCell(formatted)
	}
	if formatted != raw && formattedDate.MatchString(formatted) {
		if t, err := excelize.ExcelDateToTime(n, date1904); err == nil {
			return models.DateCell(t)
		}
	}
	return models.NumberCell(n)
}
