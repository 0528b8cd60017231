package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestColumnLetter tests index -> letter conversion
func TestColumnLetter(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
		{-1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ColumnLetter(tt.index); got != tt.want {
				t.Errorf("ColumnLetter(%d) = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}

// TestColumnIndex tests letter -> index conversion and error handling
func TestColumnIndex(t *testing.T) {
	tests := []struct {
		letter  string
		want    int
		wantErr bool
	}{
		{"A", 0, false},
		{"z", 25, false},
		{"AA", 26, false},
		{" ab ", 27, false},
		{"ZZ", 701, false},
		{"AAA", 702, false},
		{"", -1, true},
		{"A1", -1, true},
		{"$", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.letter, func(t *testing.T) {
			got, err := ColumnIndex(tt.letter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ColumnIndex(%q) error = %v, wantErr %v", tt.letter, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ColumnIndex(%q) = %d, want %d", tt.letter, got, tt.want)
			}
		})
	}
}

// TestColumnLetterRoundTrip verifies both directions agree over a wide range
func TestColumnLetterRoundTrip(t *testing.T) {
	for i := 0; i < 20000; i++ {
		idx, err := ColumnIndex(ColumnLetter(i))
		if err != nil {
			t.Fatalf("round trip of %d failed: %v", i, err)
		}
		if idx != i {
			t.Fatalf("round trip of %d returned %d", i, idx)
		}
	}
}

func TestRawSheetAccessors(t *testing.T) {
	sheet := RawSheet{
		Name: "Rent Roll",
		Rows: [][]Cell{
			{TextCell("Unit"), TextCell("Rent")},
			{TextCell("101")},
			{},
		},
	}

	if got := sheet.Cell(0, 1).String(); got != "Rent" {
		t.Errorf("Expected Rent, got %q", got)
	}
	if got := sheet.Cell(1, 5); got.Kind != CellNull {
		t.Errorf("Expected null cell for out of range column, got %v", got.Kind)
	}
	if got := sheet.Row(10); got != nil {
		t.Errorf("Expected nil row for out of range index, got %v", got)
	}
	if !RowIsEmpty(sheet.Row(2)) {
		t.Error("Expected empty row to be reported as empty")
	}

	head := sheet.Head(1)
	head[0][0] = TextCell("mutated")
	if sheet.Rows[0][0].Text != "Unit" {
		t.Error("Head must return a copy of the rows")
	}
	if len(sheet.Head(50)) != 3 {
		t.Error("Head must clamp to the row count")
	}
}

func TestCellStringAndJSON(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		cell     Cell
		wantStr  string
		wantJSON string
	}{
		{"null", NullCell(), "", "null"},
		{"number", NumberCell(1234.5), "1234.5", "1234.5"},
		{"integer number", NumberCell(1500), "1500", "1500"},
		{"date", DateCell(date), "2024-03-01", `"2024-03-01"`},
		{"text", TextCell("  Jane Doe "), "Jane Doe", `"Jane Doe"`},
		{"blank text", TextCell("   "), "", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
			b, err := json.Marshal(tt.cell)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(b) != tt.wantJSON {
				t.Errorf("MarshalJSON() = %s, want %s", b, tt.wantJSON)
			}
		})
	}
}

func TestColumnMapping(t *testing.T) {
	m := ColumnMapping{}
	m.Set(FieldUnitNumber, 0)
	m.Set(FieldCurrentRent, 2)
	m.Set(FieldCurrentRent, 3)

	col, ok := m.Column(FieldCurrentRent)
	if !ok || col != 3 {
		t.Errorf("Expected later mapping to win, got %d (%v)", col, ok)
	}
	if _, ok := m.Column(FieldTenantName); ok {
		t.Error("Expected tenant_name to be unmapped")
	}
	if m.Resolved() != 2 {
		t.Errorf("Expected 2 resolved fields, got %d", m.Resolved())
	}
	letters := m.Letters()
	if letters[FieldCurrentRent] != "D" || letters[FieldUnitNumber] != "A" {
		t.Errorf("Unexpected letters: %v", letters)
	}
	if m.MaxColumn() != 3 {
		t.Errorf("Expected max column 3, got %d", m.MaxColumn())
	}
	fields := m.Fields()
	if len(fields) != 2 || fields[0] != FieldUnitNumber || fields[1] != FieldCurrentRent {
		t.Errorf("Unexpected field order: %v", fields)
	}
}
