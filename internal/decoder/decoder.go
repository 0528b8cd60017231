// Package decoder turns uploaded rent-roll files into RawSheets.
// Workbooks (xlsx, and legacy xls) become one sheet per worksheet; delimited text (csv, tsv,
// semicolon or pipe separated) becomes a single sheet named after the file.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
)

// File-level decode errors. Any of them aborts processing of the whole file.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrWorkbook            = errors.New("failed to process Excel file")
	ErrEncodingUndetected  = errors.New("could not detect text encoding")
	ErrEmptyFile           = errors.New("file is empty")
)

// Format is the source format chosen for a file.
type Format string

const (
	FormatWorkbook  Format = "workbook"
	FormatDelimited Format = "delimited"
)

var workbookExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}

var textExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

var workbookMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel":                                          true,
	"application/vnd.ms-excel.sheet.macroenabled.12":                    true,
}

var textMimeTypes = map[string]bool{
	"text/csv":                  true,
	"text/plain":                true,
	"text/tab-separated-values": true,
	"application/csv":           true,
}

// Decoder decodes raw file bytes into sheets.
type Decoder interface {
	// Decode returns every sheet of the file.
	// Returns ErrUnsupportedFileType when neither the name, the declared MIME
	// type nor the content identify a supported format.
	// Returns ErrWorkbook wrapping the cause for corrupt workbooks.
	// Returns ErrEncodingUndetected for text with no acceptable encoding.
	Decode(ctx context.Context, data []byte, fileName, mimeType string) (*models.RawFileData, error)
}

type decoder struct {
	log *logger.Logger
}

// NewDecoder creates a new Decoder.
func NewDecoder(log *logger.Logger) Decoder {
	return &decoder{log: log}
}

// Decode dispatches on extension, then declared MIME type, then sniffed content.
func (d *decoder) Decode(ctx context.Context, data []byte, fileName, mimeType string) (*models.RawFileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	format, err := DetectFormat(data, fileName, mimeType)
	if err != nil {
		d.log.Warn("Rejected file with unsupported type", map[string]interface{}{
			"file":      fileName,
			"mime_type": mimeType,
		})
		return nil, err
	}

	var sheets []models.RawSheet
	switch format {
	case FormatWorkbook:
		sheets, err = decodeWorkbook(data)
	default:
		var sheet models.RawSheet
		var enc string
		sheet, enc, err = decodeDelimited(data, SheetNameFromFile(fileName))
		if err == nil {
			sheets = []models.RawSheet{sheet}
			d.log.Debug("Decoded delimited text", map[string]interface{}{
				"file":     fileName,
				"encoding": enc,
				"rows":     sheet.RowCount(),
			})
		}
	}
	if err != nil {
		return nil, err
	}

	d.log.Info("File decoded", map[string]interface{}{
		"file":   fileName,
		"format": string(format),
		"sheets": len(sheets),
	})

	return &models.RawFileData{
		FileName: fileName,
		Sheets:   sheets,
	}, nil
}

// DetectFormat picks the decode path for a file.
func DetectFormat(data []byte, fileName, mimeType string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case textExtensions[ext]:
		return FormatDelimited, nil
	case workbookExtensions[ext]:
		return FormatWorkbook, nil
	}

	mt := normalizeMime(mimeType)
	switch {
	case workbookMimeTypes[mt]:
		return FormatWorkbook, nil
	case textMimeTypes[mt]:
		return FormatDelimited, nil
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		sniffed := normalizeMime(m.String())
		if workbookMimeTypes[sniffed] {
			return FormatWorkbook, nil
		}
		if strings.HasPrefix(sniffed, "text/") {
			return FormatDelimited, nil
		}
	}

	offending := ext
	if offending == "" {
		offending = mimeType
	}
	if offending == "" {
		offending = "unknown"
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, offending)
}

// SheetNameFromFile derives a sheet name from a file name by dropping the
// directory and extension.
func SheetNameFromFile(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == "/" {
		return "Sheet1"
	}
	return name
}

func normalizeMime(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
