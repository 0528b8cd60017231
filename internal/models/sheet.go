package models

import (
	"fmt"
	"strings"
)

// RawSheet is one decoded table: a workbook tab or the single table of a
// delimited text file. Rows are 0-based and may be ragged.
// Downstream stages read it and never modify it.
type RawSheet struct {
	Name  string   `json:"name"`
	Rows  [][]Cell `json:"rows"`
	Index int      `json:"index"`
}

// RawFileData is the decoder output for one uploaded file.
type RawFileData struct {
	FileName string     `json:"fileName"`
	Sheets   []RawSheet `json:"sheets"`
}

// RowCount returns the number of rows in the sheet.
func (s *RawSheet) RowCount() int {
	return len(s.Rows)
}

// Row returns the row at index i, or nil when out of range.
func (s *RawSheet) Row(i int) []Cell {
	if i < 0 || i >= len(s.Rows) {
		return nil
	}
	return s.Rows[i]
}

// Cell returns the cell at (row, col), or a null cell when out of range.
func (s *RawSheet) Cell(row, col int) Cell {
	r := s.Row(row)
	if col < 0 || col >= len(r) {
		return NullCell()
	}
	return r[col]
}

// Head returns a copy of the first n rows.
func (s *RawSheet) Head(n int) [][]Cell {
	if n > len(s.Rows) {
		n = len(s.Rows)
	}
	if n <= 0 {
		return [][]Cell{}
	}
	out := make([][]Cell, n)
	for i := 0; i < n; i++ {
		out[i] = append([]Cell(nil), s.Rows[i]...)
	}
	return out
}

// RowIsEmpty reports whether every cell of the row is empty.
func RowIsEmpty(row []Cell) bool {
	for _, c := range row {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// RowText joins the non-empty cells of a row with single spaces.
func RowText(row []Cell) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c.IsEmpty() {
			continue
		}
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// RowStrings renders each cell of the given rows with Cell.String.
func RowStrings(rows [][]Cell) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, c := range row {
			out[i][j] = c.String()
		}
	}
	return out
}

// ColumnLetter converts a 0-based column index to its spreadsheet letter
// (0 -> "A", 25 -> "Z", 26 -> "AA"). Negative indexes return "".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append(b, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// ColumnIndex converts a spreadsheet column letter to its 0-based index.
// Letters are case-insensitive.
func ColumnIndex(letter string) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return -1, fmt.Errorf("empty column letter")
	}
	n := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return -1, fmt.Errorf("invalid column letter %q", letter)
		}
		n = n*26 + int(r-'A'+1)
		if n > 1<<20 {
			return -1, fmt.Errorf("column letter %q out of range", letter)
		}
	}
	return n - 1, nil
}
