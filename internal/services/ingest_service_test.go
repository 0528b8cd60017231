package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/decoder"
	"github.com/stwalsh4118/rentroll/internal/headers"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/telemetry"
)

// MockAnalyzer is a mock implementation of ai.Analyzer for testing
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) ClassifySheet(ctx context.Context, sheetName string, rows [][]string) (*ai.SheetClassification, error) {
	args := m.Called(ctx, sheetName, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.SheetClassification), args.Error(1)
}

func (m *MockAnalyzer) DetectHeaders(ctx context.Context, sheetName string, rows [][]string) (*ai.HeaderDetection, error) {
	args := m.Called(ctx, sheetName, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.HeaderDetection), args.Error(1)
}

// failingCache reports an error for every operation.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingCache) Put(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tenant-%d", n)
	}
}

func newTestPipeline(analyzer ai.Analyzer, c cache.Cache) IngestService {
	return NewPipeline(PipelineConfig{Analyzer: analyzer, Cache: c, NewID: sequentialIDs()}, logger.Nop())
}

func csvUpload(name string, lines ...string) Upload {
	return Upload{
		FileName: name,
		MimeType: "text/csv",
		Data:     []byte(strings.Join(lines, "\n") + "\n"),
	}
}

var scenarioOne = []string{
	"Unit,Tenant,Rent,Status",
	"101,Jane Doe,1500,Occupied",
	"102,,0,Vacant",
	"TOTAL,,1500,",
}

func TestProcess_ScenarioOne(t *testing.T) {
	svc := newTestPipeline(nil, nil)

	result, err := svc.Process(context.Background(), csvUpload("roll.csv", scenarioOne...))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Sheets, 1)

	sheet := result.Sheets[0]
	assert.Equal(t, "roll", sheet.SheetName)
	assert.Equal(t, models.SheetRentRoll, sheet.Classification.Type)
	assert.Equal(t, models.SourceHeuristic, sheet.Headers.Source)
	require.Len(t, sheet.Data, 2)
	assert.Equal(t, "101", sheet.Data[0].UnitNumber)
	assert.Equal(t, "102", sheet.Data[1].UnitNumber)

	want := models.RentRollSummary{
		TotalUnits:    2,
		OccupiedUnits: 1,
		VacantUnits:   1,
		TotalRent:     1500,
		AverageRent:   1500,
		OccupancyRate: 50,
	}
	assert.Equal(t, want, sheet.Summary)
	assert.Equal(t, want, result.Summary)

	require.Len(t, result.ExtractedTenants, 1)
	tenant := result.ExtractedTenants[0]
	assert.Equal(t, "tenant-1", tenant.ID)
	assert.Equal(t, "Jane Doe", tenant.TenantName)
	assert.Equal(t, "101", tenant.UnitNumber)
	assert.Equal(t, models.TenantSourceRentRoll, tenant.Source)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))
}

func TestProcess_KeepsIrregularUnits(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		wantUnits   []string
		wantTenants []string
	}{
		{
			name: "credit rent",
			lines: []string{
				"Unit,Tenant,Rent,Status",
				"101,Jane Doe,(50.00),Occupied",
				"102,John Roe,1200,Occupied",
			},
			wantUnits:   []string{"101", "102"},
			wantTenants: []string{"Jane Doe", "John Roe"},
		},
		{
			name: "sparse vacant unit right after the header",
			lines: []string{
				"Unit,Tenant,Rent,Status",
				"101,,,",
				"102,John Roe,1200,Occupied",
			},
			wantUnits:   []string{"101", "102"},
			wantTenants: []string{"John Roe"},
		},
		{
			name: "header repeated between pages",
			lines: []string{
				"Unit,Tenant,Rent,Status",
				"101,Jane Doe,1500,Occupied",
				"Unit,Tenant,Rent,Status",
				"102,John Roe,1200,Occupied",
			},
			wantUnits:   []string{"101", "102"},
			wantTenants: []string{"Jane Doe", "John Roe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("roll.csv", tt.lines...))

			require.NoError(t, err)
			assert.Empty(t, result.Errors)
			require.Len(t, result.Sheets, 1)

			var units []string
			for _, u := range result.Sheets[0].Data {
				units = append(units, u.UnitNumber)
			}
			assert.Equal(t, tt.wantUnits, units)
			assert.Equal(t, len(tt.wantUnits), result.Summary.TotalUnits)

			var names []string
			for _, tenant := range result.ExtractedTenants {
				names = append(names, tenant.TenantName)
			}
			assert.Equal(t, tt.wantTenants, names)
		})
	}
}

func TestProcess_WorkbookSkipsSummarySheet(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetSheetName("Sheet1", "Rent Roll"))
	require.NoError(t, f.SetSheetRow("Rent Roll", "A1", &[]interface{}{"Unit", "Tenant", "Rent", "Status"}))
	require.NoError(t, f.SetSheetRow("Rent Roll", "A2", &[]interface{}{"A1", "Ann Lee", 1200, "Occupied"}))
	require.NoError(t, f.SetSheetRow("Rent Roll", "A3", &[]interface{}{"A2", "Bo Park", 1300, "Occupied"}))
	_, err := f.NewSheet("Summary")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Summary", "A1", &[]interface{}{"Unit", "Tenant", "Rent", "Status"}))
	require.NoError(t, f.SetSheetRow("Summary", "A2", &[]interface{}{"Total Units", 2, 2500, nil}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	result, err := newTestPipeline(nil, nil).Process(context.Background(), Upload{
		FileName: "portfolio.xlsx",
		Data:     buf.Bytes(),
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, "Rent Roll", result.Sheets[0].SheetName)
	assert.Equal(t, 0, result.Sheets[0].SheetIndex)
	assert.Len(t, result.ExtractedTenants, 2)
	assert.Equal(t, 2500.0, result.Summary.TotalRent)
}

func TestProcess_CurrencyText(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("roll.csv",
		"Unit,Tenant,Rent,Status",
		`7,Ann,"$1,234.56",Occupied`,
	))

	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	require.Len(t, result.Sheets[0].Data, 1)
	require.NotNil(t, result.Sheets[0].Data[0].CurrentRent)
	assert.InDelta(t, 1234.56, *result.Sheets[0].Data[0].CurrentRent, 1e-9)
}

func TestProcess_NoticeUnitNotConverted(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("roll.csv",
		"Unit,Tenant,Rent,Status",
		"Unit 4B,-,950,Notice Given",
		"5C,Sam Lee,1000,Occupied",
	))

	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	units := result.Sheets[0].Data
	require.Len(t, units, 2)
	assert.Equal(t, "Unit 4B", units[0].UnitNumber)
	assert.Equal(t, models.StatusNotice, units[0].OccupancyStatus)

	require.Len(t, result.ExtractedTenants, 1)
	assert.Equal(t, "5C", result.ExtractedTenants[0].UnitNumber)
}

func TestProcess_LowHeaderConfidence(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("garbled.csv",
		"Unit,Tenant,Rent,x1,x2,x3,x4,x5,x6,x7,x8,x9",
		"1,2,3,4,5,6,7,8,9,10,11,12",
	))

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Sheets)
	assert.Equal(t, []string{`Sheet "garbled": header detection confidence too low (25%)`}, result.Errors)
}

func TestProcess_NoHeaderRow(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("notes.csv",
		"Call the leasing office",
		"Monday to Friday",
	))

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{`Sheet "notes": could not detect header row`}, result.Errors)
}

func TestProcess_HeaderOnly(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("empty.csv",
		"Unit,Tenant,Rent,Status",
	))

	require.NoError(t, err)
	assert.False(t, result.Success, "no tenants means no success")
	assert.Empty(t, result.Errors)
	require.Len(t, result.Sheets, 1)
	assert.Empty(t, result.Sheets[0].Data)
	assert.Equal(t, models.RentRollSummary{}, result.Sheets[0].Summary)
	assert.Equal(t, models.RentRollSummary{}, result.Summary)
	assert.Empty(t, result.ExtractedTenants)
}

func TestProcess_FileLevelErrors(t *testing.T) {
	tests := []struct {
		name       string
		upload     Upload
		wantPrefix string
	}{
		{"unsupported", Upload{FileName: "report.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7\x00\x01")}, "unsupported file type: .pdf"},
		{"corrupt workbook", Upload{FileName: "broken.xlsx", Data: []byte("PK\x03\x04not really a zip")}, decoder.ErrWorkbook.Error() + ": "},
		{"empty", Upload{FileName: "empty.csv"}, decoder.ErrEmptyFile.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestPipeline(nil, nil).Process(context.Background(), tt.upload)

			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Empty(t, result.Sheets)
			assert.Empty(t, result.ExtractedTenants)
			require.Len(t, result.Errors, 1)
			assert.True(t, strings.HasPrefix(result.Errors[0], tt.wantPrefix), result.Errors[0])
		})
	}
}

func TestProcess_RowErrorsAreReported(t *testing.T) {
	result, err := newTestPipeline(nil, nil).Process(context.Background(), csvUpload("roll.csv",
		"Unit,Tenant,Rent,Status",
		"1,Ann,-5,Occupied",
		"2,Bo,900,Occupied",
	))

	require.NoError(t, err)
	assert.True(t, result.Success, "partial success is still success")
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], `Sheet "roll": Row 2: current_rent`), result.Errors[0])
	assert.Len(t, result.ExtractedTenants, 1)
}

func TestProcess_FallsBackWhenAIFails(t *testing.T) {
	analyzer := new(MockAnalyzer)
	analyzer.On("ClassifySheet", mock.Anything, "roll", mock.Anything).Return(nil, ai.ErrRateLimited)
	analyzer.On("DetectHeaders", mock.Anything, "roll", mock.Anything).Return(nil, errors.New("upstream timeout"))

	result, err := newTestPipeline(analyzer, nil).Process(context.Background(), csvUpload("roll.csv", scenarioOne...))

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, models.SourceHeuristic, result.Sheets[0].Classification.Source)
	assert.Equal(t, models.SourceHeuristic, result.Sheets[0].Headers.Source)
	assert.Len(t, result.Sheets[0].Data, 2)
	analyzer.AssertExpectations(t)
}

func aiAnalyzer() *MockAnalyzer {
	analyzer := new(MockAnalyzer)
	analyzer.On("ClassifySheet", mock.Anything, "roll", mock.Anything).
		Return(&ai.SheetClassification{SheetType: "rent_roll", PropertyName: "Oak Manor", Confidence: 0.9}, nil)
	analyzer.On("DetectHeaders", mock.Anything, "roll", mock.Anything).
		Return(&ai.HeaderDetection{
			HeaderRow:    1,
			DataStartRow: 2,
			ColumnMapping: map[string]string{
				"unit_number":      "A",
				"tenant_name":      "B",
				"current_rent":     "C",
				"occupancy_status": "D",
			},
			Confidence: 0.95,
		}, nil)
	return analyzer
}

func TestProcess_CachesAIDetections(t *testing.T) {
	analyzer := aiAnalyzer()
	store := cache.NewMemory(0)
	svc := newTestPipeline(analyzer, store)
	upload := csvUpload("roll.csv", scenarioOne...)

	first, err := svc.Process(context.Background(), upload)
	require.NoError(t, err)
	require.Len(t, first.Sheets, 1)
	assert.Equal(t, models.SourceAI, first.Sheets[0].Classification.Source)
	assert.Equal(t, "Oak Manor", first.Sheets[0].Classification.PropertyName)
	assert.Equal(t, models.SourceAI, first.Sheets[0].Headers.Source)
	assert.Equal(t, 2, store.Len())

	second, err := svc.Process(context.Background(), upload)
	require.NoError(t, err)
	require.Len(t, second.Sheets, 1)
	assert.Equal(t, models.SourceCache, second.Sheets[0].Classification.Source)
	assert.Equal(t, models.SourceCache, second.Sheets[0].Headers.Source)
	assert.Equal(t, first.Sheets[0].Data, second.Sheets[0].Data)
	assert.Equal(t, first.Sheets[0].Headers.ColumnMapping, second.Sheets[0].Headers.ColumnMapping)

	analyzer.AssertNumberOfCalls(t, "ClassifySheet", 1)
	analyzer.AssertNumberOfCalls(t, "DetectHeaders", 1)
}

func TestProcess_HeuristicResultsAreNotCached(t *testing.T) {
	store := cache.NewMemory(0)

	_, err := newTestPipeline(nil, store).Process(context.Background(), csvUpload("roll.csv", scenarioOne...))

	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestProcess_CacheFailureFallsThrough(t *testing.T) {
	analyzer := aiAnalyzer()

	result, err := newTestPipeline(analyzer, failingCache{}).Process(context.Background(), csvUpload("roll.csv", scenarioOne...))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, models.SourceAI, result.Sheets[0].Headers.Source)
}

func TestProcess_UnreadableCacheEntryIgnored(t *testing.T) {
	ctx := context.Background()
	upload := csvUpload("roll.csv", scenarioOne...)
	raw, err := decoder.NewDecoder(logger.Nop()).Decode(ctx, upload.Data, upload.FileName, upload.MimeType)
	require.NoError(t, err)
	leading := models.RowStrings(raw.Sheets[0].Head(cache.KeyRows))

	store := cache.NewMemory(0)
	require.NoError(t, store.Put(ctx, cache.Key(cache.OpHeaders, upload.FileName, len(upload.Data), leading), []byte("{not json")))
	require.NoError(t, store.Put(ctx, cache.Key(cache.OpClassify, upload.FileName, len(upload.Data), leading), []byte(`{"type":"bogus"}`)))

	result, err := newTestPipeline(nil, store).Process(ctx, upload)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.SourceHeuristic, result.Sheets[0].Classification.Source)
	assert.Equal(t, models.SourceHeuristic, result.Sheets[0].Headers.Source)
}

func TestProcess_Idempotent(t *testing.T) {
	svc := NewPipeline(PipelineConfig{}, logger.Nop())
	upload := csvUpload("roll.csv",
		"Oak Manor Rent Roll",
		"",
		"Unit,Tenant,Rent,Market Rent,Sq Ft,Move In,Lease End,Status",
		`101,Jane Doe,"$1,500.00",1600,850,1/15/2023,1/14/2024,Occupied`,
		"102,VACANT,0,1550,850,,,Vacant",
		"103,Sam Lee,1450,1550,700,3/1/2023,2/28/2024,Notice",
		"Total,,2950,4700,2400,,,",
	)

	first, err := svc.Process(context.Background(), upload)
	require.NoError(t, err)
	second, err := svc.Process(context.Background(), upload)
	require.NoError(t, err)

	assert.Equal(t, first.Sheets, second.Sheets)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Errors, second.Errors)
	require.Len(t, second.ExtractedTenants, len(first.ExtractedTenants))
	for i := range first.ExtractedTenants {
		a, b := first.ExtractedTenants[i], second.ExtractedTenants[i]
		assert.NotEqual(t, a.ID, b.ID, "ids are fresh per run")
		a.ID, b.ID = "", ""
		assert.Equal(t, a, b)
	}
	assert.Len(t, first.Sheets[0].Data, 3)
	assert.Equal(t, 1, first.Sheets[0].Headers.HeaderRowIndex, "blank lines are dropped by the decoder")
}

func TestProcess_Progress(t *testing.T) {
	upload := csvUpload("roll.csv", scenarioOne...)
	var calls []string
	upload.Progress = func(sheet string, done, total int) {
		calls = append(calls, fmt.Sprintf("%s %d/%d", sheet, done, total))
	}

	_, err := newTestPipeline(nil, nil).Process(context.Background(), upload)

	require.NoError(t, err)
	assert.Equal(t, []string{"roll 1/3", "roll 2/3", "roll 3/3"}, calls)
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestPipeline(nil, nil).Process(ctx, csvUpload("roll.csv", scenarioOne...))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessingCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
	assert.Empty(t, result.Sheets)
}

func TestProcess_RecordsFallbackMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	metrics, err := telemetry.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	analyzer := new(MockAnalyzer)
	analyzer.On("ClassifySheet", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	analyzer.On("DetectHeaders", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	svc := NewPipeline(PipelineConfig{Analyzer: analyzer, Metrics: metrics}, logger.Nop())
	_, err = svc.Process(context.Background(), csvUpload("roll.csv", scenarioOne...))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					values[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), values["rentroll.ai.fallbacks"])
	assert.Equal(t, int64(2), values["rentroll.units.extracted"])
	assert.Equal(t, int64(1), values["rentroll.files.processed"])
	assert.Equal(t, int64(1), values["rentroll.sheets"])
}

func TestSheetMessage(t *testing.T) {
	gateErr := headers.Gate("garbled", models.HeaderDetectionResult{HeaderRowIndex: 2, Confidence: 0.1}, headers.MinConfidence)
	assert.Equal(t, `Sheet "garbled": header detection confidence too low (10%)`, sheetMessage("garbled", gateErr))

	assert.Equal(t, `Sheet "other": boom`, sheetMessage("other", errors.New("boom")))
}

func TestProcess_LegacyWorkbook(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "decoder", "testdata", "roll.xls"))
	require.NoError(t, err)

	result, err := newTestPipeline(nil, nil).Process(context.Background(), Upload{
		FileName: "roll.xls",
		MimeType: "application/vnd.ms-excel",
		Data:     data,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Sheets, 1, "the summary sheet is skipped")
	assert.Equal(t, "Rent Roll", result.Sheets[0].SheetName)
	assert.Equal(t, 3, result.Summary.TotalUnits)
	assert.Equal(t, 2, result.Summary.OccupiedUnits)

	var names []string
	for _, tenant := range result.ExtractedTenants {
		names = append(names, tenant.TenantName)
	}
	assert.Equal(t, []string{"Jane Doe", "Sam Lee"}, names)
}
