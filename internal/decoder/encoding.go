package decoder

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// maxNonPrintableRatio is the share of non-printable runes above which a
// decoding is rejected.
const maxNonPrintableRatio = 0.10

// minUTF16ZeroRatio is the share of code units with a zero high byte needed
// to accept BOM-less UTF-16LE. Text in Latin scripts sits far above it.
const minUTF16ZeroRatio = 0.30

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
)

type encodingCandidate struct {
	decode func([]byte) (string, bool)
	name   string
}

// encodingCandidates are tried in order; the first acceptable decoding wins.
var encodingCandidates = []encodingCandidate{
	{name: "utf-8", decode: decodeUTF8},
	{name: "utf-16le", decode: decodeUTF16LE},
	{name: "ascii", decode: decodeASCII},
	{name: "latin1", decode: decodeLatin1},
}

// DetectEncoding decodes data with the first candidate encoding whose output
// has fewer than 10% non-printable characters.
func DetectEncoding(data []byte) (text string, encoding string, err error) {
	for _, c := range encodingCandidates {
		decoded, ok := c.decode(data)
		if !ok {
			continue
		}
		if nonPrintableRatio(decoded) < maxNonPrintableRatio {
			return decoded, c.name, nil
		}
	}
	return "", "", ErrEncodingUndetected
}

func decodeUTF8(data []byte) (string, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeUTF16LE(data []byte) (string, bool) {
	if len(data) < 2 || len(data)%2 != 0 {
		return "", false
	}
	if !bytes.HasPrefix(data, utf16LEBOM) && utf16ZeroHighByteRatio(data) < minUTF16ZeroRatio {
		return "", false
	}
	dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func decodeASCII(data []byte) (string, bool) {
	for _, b := range data {
		if b > 0x7F {
			return "", false
		}
	}
	return string(data), true
}

func decodeLatin1(data []byte) (string, bool) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func utf16ZeroHighByteRatio(data []byte) float64 {
	units := len(data) / 2
	if units == 0 {
		return 0
	}
	zeros := 0
	for i := 1; i < len(data); i += 2 {
		if data[i] == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(units)
}

func nonPrintableRatio(s string) float64 {
	total, bad := 0, 0
	for _, r := range s {
		total++
		if !isPrintable(r) {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}

func isPrintable(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return true
	case utf8.RuneError, 0:
		return false
	}
	return !unicode.IsControl(r)
}
