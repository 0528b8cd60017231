// Package vocabulary holds the keyword tables shared by the rent-roll
// classifier, header detector and row extractor.
package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/stwalsh4118/rentroll/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// StatusWords groups the status-text keywords used for occupancy inference.
type StatusWords struct {
	Vacant   []string `yaml:"vacant"`
	Notice   []string `yaml:"notice"`
	Pending  []string `yaml:"pending"`
	Occupied []string `yaml:"occupied"`
}

// Vocabulary is the full keyword configuration.
type Vocabulary struct {
	HeaderKeywords     map[models.Field][]string `yaml:"header_keywords"`
	StatusWords        StatusWords               `yaml:"status_words"`
	Exclusions         []string                  `yaml:"exclusions"`
	RentRollIndicators []string                  `yaml:"rent_roll_indicators"`
	SummarySheetWords  []string                  `yaml:"summary_sheet_words"`
	SheetNamePrefixes  []string                  `yaml:"sheet_name_prefixes"`
	TenantPlaceholders []string                  `yaml:"tenant_placeholders"`
}

// Default returns the embedded vocabulary.
func Default() *Vocabulary {
	v, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("vocabulary: embedded default is invalid: %v", err))
	}
	return v
}

// Load reads a vocabulary file. An empty path returns the default.
// Sections missing from the file keep their default values.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Default().merge(override), nil
}

// Parse decodes YAML into a normalized vocabulary.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	for field := range v.HeaderKeywords {
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field %q in header_keywords", field)
		}
	}
	v.normalize()
	return &v, nil
}

func (v *Vocabulary) merge(o *Vocabulary) *Vocabulary {
	if len(o.HeaderKeywords) > 0 {
		for field, kws := range o.HeaderKeywords {
			v.HeaderKeywords[field] = kws
		}
	}
	if len(o.Exclusions) > 0 {
		v.Exclusions = o.Exclusions
	}
	if len(o.RentRollIndicators) > 0 {
		v.RentRollIndicators = o.RentRollIndicators
	}
	if len(o.SummarySheetWords) > 0 {
		v.SummarySheetWords = o.SummarySheetWords
	}
	if len(o.SheetNamePrefixes) > 0 {
		v.SheetNamePrefixes = o.SheetNamePrefixes
	}
	if len(o.TenantPlaceholders) > 0 {
		v.TenantPlaceholders = o.TenantPlaceholders
	}
	if len(o.StatusWords.Vacant) > 0 {
		v.StatusWords.Vacant = o.StatusWords.Vacant
	}
	if len(o.StatusWords.Notice) > 0 {
		v.StatusWords.Notice = o.StatusWords.Notice
	}
	if len(o.StatusWords.Pending) > 0 {
		v.StatusWords.Pending = o.StatusWords.Pending
	}
	if len(o.StatusWords.Occupied) > 0 {
		v.StatusWords.Occupied = o.StatusWords.Occupied
	}
	return v
}

func (v *Vocabulary) normalize() {
	if v.HeaderKeywords == nil {
		v.HeaderKeywords = map[models.Field][]string{}
	}
	for field, kws := range v.HeaderKeywords {
		v.HeaderKeywords[field] = normalizeAll(kws)
	}
	v.Exclusions = normalizeAll(v.Exclusions)
	v.RentRollIndicators = normalizeAll(v.RentRollIndicators)
	v.SummarySheetWords = normalizeAll(v.SummarySheetWords)
	v.SheetNamePrefixes = normalizeAll(v.SheetNamePrefixes)
	v.TenantPlaceholders = normalizeAll(v.TenantPlaceholders)
	v.StatusWords.Vacant = normalizeAll(v.StatusWords.Vacant)
	v.StatusWords.Notice = normalizeAll(v.StatusWords.Notice)
	v.StatusWords.Pending = normalizeAll(v.StatusWords.Pending)
	v.StatusWords.Occupied = normalizeAll(v.StatusWords.Occupied)
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		n := Normalize(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Normalize lowercases s and reduces every run of non-alphanumeric
// characters to a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ContainsPhrase reports whether the normalized text contains phrase as a
// sequence of whole words. Both arguments must already be normalized.
func ContainsPhrase(text, phrase string) bool {
	if text == "" || phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// MatchAny returns the first phrase contained in the normalized text.
func MatchAny(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

// CountDistinct returns how many of the phrases occur in the normalized text.
func CountDistinct(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			n++
		}
	}
	return n
}

// IsExcluded reports whether raw text contains an exclusion phrase
// such as "total" or "grand total".
func (v *Vocabulary) IsExcluded(raw string) bool {
	_, ok := MatchAny(Normalize(raw), v.Exclusions)
	return ok
}

// IsTenantPlaceholder reports whether a tenant cell holds a placeholder
// such as "-" or "VACANT" rather than a name.
func (v *Vocabulary) IsTenantPlaceholder(raw string) bool {
	n := Normalize(raw)
	if n == "" {
		return true
	}
	for _, p := range v.TenantPlaceholders {
		if n == p {
			return true
		}
	}
	return false
}

// MatchField returns the field whose keyword best matches a header cell.
// The longest matching keyword wins; ties keep canonical field order.
func (v *Vocabulary) MatchField(raw string) (models.Field, bool) {
	text := Normalize(raw)
	if text == "" {
		return "", false
	}
	var best models.Field
	bestLen := 0
	for _, field := range models.AllFields() {
		for _, kw := range v.HeaderKeywords[field] {
			if len(kw) > bestLen && ContainsPhrase(text, kw) {
				best = field
				bestLen = len(kw)
			}
		}
	}
	return best, bestLen > 0
}
