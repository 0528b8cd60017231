package decoder

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/gabriel-vasile/mimetype"
	"github.com/stwalsh4118/rentroll/internal/models"
)

// oleMimeTypes identify a BIFF workbook stored in an OLE2 compound file.
var oleMimeTypes = map[string]bool{
	"application/vnd.ms-excel":  true,
	"application/x-ole-storage": true,
}

// isLegacyWorkbook reports whether data is an OLE2 (.xls) workbook rather
// than an OOXML zip.
func isLegacyWorkbook(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if oleMimeTypes[normalizeMime(m.String())] {
			return true
		}
	}
	return false
}

// decodeLegacyWorkbook reads a BIFF workbook. The reader hands back each
// cell as rendered text, so cells are typed the same way delimited fields
// are.
func decodeLegacyWorkbook(data []byte) (sheets []models.RawSheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets = nil
			err = fmt.Errorf("%w: malformed xls: %v", ErrWorkbook, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
	}
	// OpenReader returns neither a workbook nor an error when the
	// compound file has no Workbook stream.
	if wb == nil {
		return nil, fmt.Errorf("%w: no workbook stream", ErrWorkbook)
	}

	sheets = make([]models.RawSheet, 0, wb.NumSheets())
	for idx := 0; idx < wb.NumSheets(); idx++ {
		ws := wb.GetSheet(idx)
		if ws == nil {
			continue
		}

		rows := make([][]models.Cell, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, []models.Cell{})
				continue
			}
			// LastCol is one past the last cell in well-formed files;
			// reading one past it yields a trailing null at most.
			cells := make([]models.Cell, 0, row.LastCol()+1)
			for c := 0; c <= row.LastCol(); c++ {
				cells = append(cells, CoerceField(row.Col(c)))
			}
			rows = append(rows, trimTrailingNulls(cells))
		}

		sheets = append(sheets, models.RawSheet{
			Name:  ws.Name,
			Index: idx,
			Rows:  rows,
		})
	}
	return sheets, nil
}

func trimTrailingNulls(row []models.Cell) []models.Cell {
	end := len(row)
	for end > 0 && row[end-1].IsEmpty() {
		end--
	}
	return row[:end]
}
