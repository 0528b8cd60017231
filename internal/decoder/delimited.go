package decoder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stwalsh4118/rentroll/internal/models"
)

// delimiterSampleLines is how many non-empty lines are sampled for delimiter detection.
const delimiterSampleLines = 5

// candidateDelimiters in tie-break order.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

var (
	numericLooking = regexp.MustCompile(`^[\d.,\-$\s]+$`)
	dateLooking    = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
)

// textDateLayouts are the layouts accepted for date-looking fields.
var textDateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
	"1-2-06",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06 15:04",
}

func decodeDelimited(data []byte, sheetName string) (models.RawSheet, string, error) {
	text, enc, err := DetectEncoding(data)
	if err != nil {
		return models.RawSheet{}, "", err
	}
	text = strings.TrimPrefix(text, "\ufeff")

	delim := DetectDelimiter(text)
	records := SplitRecords(text, delim)

	rows := make([][]models.Cell, 0, len(records))
	for _, rec := range records {
		row := make([]models.Cell, len(rec))
		for i, field := range rec {
			row[i] = CoerceField(field)
		}
		rows = append(rows, row)
	}

	return models.RawSheet{
		Name:  sheetName,
		Index: 0,
		Rows:  rows,
	}, enc, nil
}

type delimiterScore struct {
	consistency float64
	average     float64
	lines       int
}

func (s delimiterScore) beats(o delimiterScore) bool {
	if s.consistency != o.consistency {
		return s.consistency > o.consistency
	}
	if s.lines != o.lines {
		return s.lines > o.lines
	}
	return s.average > o.average
}

// DetectDelimiter picks the delimiter whose per-line counts over the first
// lines are most consistent: 1 - (max-min)/average, computed over lines where
// the delimiter occurs. Returns ',' when no candidate occurs at all.
func DetectDelimiter(text string) rune {
	sample := sampleLines(text, delimiterSampleLines)

	best := ','
	var bestScore delimiterScore
	found := false
	for _, d := range candidateDelimiters {
		var counts []int
		for _, line := range sample {
			if n := countOutsideQuotes(line, d); n > 0 {
				counts = append(counts, n)
			}
		}
		if len(counts) == 0 {
			continue
		}
		minC, maxC, sum := counts[0], counts[0], 0
		for _, n := range counts {
			sum += n
			if n < minC {
				minC = n
			}
			if n > maxC {
				maxC = n
			}
		}
		avg := float64(sum) / float64(len(counts))
		score := delimiterScore{
			consistency: 1 - float64(maxC-minC)/avg,
			average:     avg,
			lines:       len(counts),
		}
		if !found || score.beats(bestScore) {
			best, bestScore, found = d, score, true
		}
	}
	return best
}

func sampleLines(text string, n int) []string {
	out := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

func countOutsideQuotes(line string, d rune) int {
	inQuotes := false
	n := 0
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			n++
		}
	}
	return n
}

// SplitRecords splits delimited text into records. Fields may be wrapped in
// double quotes; inside quotes the delimiter and line breaks are literal and
// "" is an escaped quote. Blank lines are dropped.
func SplitRecords(text string, delim rune) [][]string {
	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
		quoted   bool
	)
	runes := []rune(text)

	endField := func() {
		v := field.String()
		if !quoted {
			v = strings.TrimSpace(v)
		}
		record = append(record, v)
		field.Reset()
		quoted = false
	}
	endRecord := func() {
		endField()
		if !(len(record) == 1 && record[0] == "") {
			records = append(records, record)
		}
		record = nil
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inQuotes {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteRune(r)
			continue
		}
		switch {
		case r == '"' && strings.TrimSpace(field.String()) == "":
			field.Reset()
			inQuotes = true
			quoted = true
		case r == delim:
			endField()
		case r == '\r':
			// CRLF: the '\n' ends the record
		case r == '\n':
			endRecord()
		default:
			field.WriteRune(r)
		}
	}
	if field.Len() > 0 || len(record) > 0 || quoted {
		endRecord()
	}
	return records
}

// CoerceField converts one delimited field into a typed cell.
func CoerceField(raw string) models.Cell {
	s := strings.TrimSpace(raw)
	if s == "" || s == `""` {
		return models.NullCell()
	}

	if numericLooking.MatchString(s) && strings.ContainsAny(s, "0123456789") {
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "\t", "").Replace(s)
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return models.NumberCell(f)
		}
	}

	if dateLooking.MatchString(s) {
		if t, ok := parseTextDate(s); ok {
			return models.DateCell(t)
		}
	}

	return models.TextCell(s)
}

func parseTextDate(s string) (time.Time, bool) {
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
