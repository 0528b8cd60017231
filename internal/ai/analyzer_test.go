package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/rentroll/internal/logger"
)

// MockCompleter is a mock implementation of Completer for testing
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func newTestAnalyzer(t *testing.T, c Completer) Analyzer {
	t.Helper()
	a, err := NewAnalyzer(c, AnalyzerOptions{}, logger.New("test"))
	require.NoError(t, err)
	return a
}

var sampleRows = [][]string{
	{"Oak Manor Apartments"},
	{"Unit", "Tenant", "Rent"},
	{"101", "Jane Doe", "1500"},
}

func TestClassifySheet_Success(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return p.SchemaName == "sheet_classification" &&
			len(p.Messages) == 2 &&
			strings.Contains(p.Messages[1].Content, `"Rent Roll"`)
	})).Return("```json\n{\"sheetType\":\"rent_roll\",\"propertyName\":\"Oak Manor\",\"confidence\":0.92}\n```", nil)

	got, err := newTestAnalyzer(t, completer).ClassifySheet(context.Background(), "Rent Roll", sampleRows)

	require.NoError(t, err)
	assert.Equal(t, "rent_roll", got.SheetType)
	assert.Equal(t, "Oak Manor", got.PropertyName)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	completer.AssertExpectations(t)
}

func TestDetectHeaders_Success(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return(
		`Here you go: {"headerRow":2,"dataStartRow":3,"columnMapping":{"unit_number":"A","tenant_name":"B","current_rent":"C"},"confidence":0.85}`,
		nil,
	)

	got, err := newTestAnalyzer(t, completer).DetectHeaders(context.Background(), "Rent Roll", sampleRows)

	require.NoError(t, err)
	assert.Equal(t, 2, got.HeaderRow)
	assert.Equal(t, 3, got.DataStartRow)
	assert.Equal(t, map[string]string{"unit_number": "A", "tenant_name": "B", "current_rent": "C"}, got.ColumnMapping)
}

func TestAnalyzer_InvalidResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		headers  bool
	}{
		{"no json", "I could not tell.", false},
		{"unknown sheet type", `{"sheetType":"ledger","propertyName":"","confidence":0.9}`, false},
		{"confidence out of range", `{"sheetType":"summary","propertyName":"","confidence":1.5}`, false},
		{"unknown field", `{"headerRow":1,"dataStartRow":2,"columnMapping":{"pets":"A"},"confidence":0.9}`, true},
		{"bad column letter", `{"headerRow":1,"dataStartRow":2,"columnMapping":{"unit_number":"1"},"confidence":0.9}`, true},
		{"zero based row", `{"headerRow":0,"dataStartRow":1,"columnMapping":{},"confidence":0.9}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := new(MockCompleter)
			completer.On("Complete", mock.Anything, mock.Anything).Return(tt.response, nil)
			a := newTestAnalyzer(t, completer)

			var err error
			if tt.headers {
				_, err = a.DetectHeaders(context.Background(), "s", sampleRows)
			} else {
				_, err = a.ClassifySheet(context.Background(), "s", sampleRows)
			}
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestAnalyzer_CompleterError(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("", ErrRateLimited)

	_, err := newTestAnalyzer(t, completer).ClassifySheet(context.Background(), "s", sampleRows)

	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestAnalyzer_CancelledContext(t *testing.T) {
	completer := new(MockCompleter)
	a, err := NewAnalyzer(completer, AnalyzerOptions{RequestsPerMinute: 1}, logger.New("test"))
	require.NoError(t, err)

	completer.On("Complete", mock.Anything, mock.Anything).Return(`{"sheetType":"unknown","propertyName":"","confidence":0.1}`, nil).Once()
	_, err = a.ClassifySheet(context.Background(), "s", sampleRows)
	require.NoError(t, err)

	// The limiter's only token is spent; a cancelled context must not wait a minute.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.ClassifySheet(ctx, "s", sampleRows)
	assert.Error(t, err)
	completer.AssertNumberOfCalls(t, "Complete", 1)
}

func TestRenderRows(t *testing.T) {
	rows := [][]string{
		{"Unit", "Tenant"},
		{"101", "  Jane \n Doe  ", "extra"},
		{"102"},
	}

	out := RenderRows(rows, 2)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Row | A | B | C", lines[0])
	assert.Equal(t, "1 | Unit | Tenant | ", lines[1])
	assert.Equal(t, "2 | 101 | Jane Doe | extra", lines[2])
}

func TestExtractJSON(t *testing.T) {
	raw, err := ExtractJSON("prefix {\"a\": {\"b\": 1}} suffix")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, string(raw))

	_, err = ExtractJSON("nothing here")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
