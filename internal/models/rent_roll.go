package models

import "time"

// OccupancyStatus is the inferred tenancy state of a unit.
type OccupancyStatus string

const (
	StatusOccupied OccupancyStatus = "occupied"
	StatusVacant   OccupancyStatus = "vacant"
	StatusNotice   OccupancyStatus = "notice"
	StatusPending  OccupancyStatus = "pending"
	StatusUnknown  OccupancyStatus = "unknown"
)

// RentRollUnit is one extracted unit row.
// Nullable attributes use pointers to distinguish a missing value from zero.
// CurrentRent may be negative for credits and concessions.
type RentRollUnit struct {
	CurrentRent     *float64        `json:"current_rent"`
	MarketRent      *float64        `json:"market_rent"`
	SquareFootage   *float64        `json:"square_footage"`
	LeaseStart      *time.Time      `json:"lease_start"`
	LeaseEnd        *time.Time      `json:"lease_end"`
	UnitNumber      string          `json:"unit_number" validate:"required,max=64"`
	TenantName      string          `json:"tenant_name" validate:"max=256"`
	FloorPlan       string          `json:"floor_plan" validate:"max=128"`
	OccupancyStatus OccupancyStatus `json:"occupancy_status" validate:"required,oneof=occupied vacant notice pending unknown"`
}

// RentRollSummary aggregates the units of a sheet or file.
type RentRollSummary struct {
	TotalUnits    int     `json:"total_units"`
	OccupiedUnits int     `json:"occupied_units"`
	VacantUnits   int     `json:"vacant_units"`
	TotalRent     float64 `json:"total_rent"`
	AverageRent   float64 `json:"average_rent"`
	AverageSqft   float64 `json:"average_sqft"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

// ExtractionResult is the row extractor output for one sheet.
type ExtractionResult struct {
	Data    []RentRollUnit  `json:"data"`
	Errors  []string        `json:"errors"`
	Summary RentRollSummary `json:"summary"`
}

// ProcessedSheet is one sheet that went through the whole pipeline.
type ProcessedSheet struct {
	Headers        HeaderDetectionResult `json:"headers"`
	Classification SheetClassification   `json:"classification"`
	SheetName      string                `json:"sheetName"`
	Data           []RentRollUnit        `json:"data"`
	Errors         []string              `json:"errors"`
	Summary        RentRollSummary       `json:"summary"`
	SheetIndex     int                   `json:"sheetIndex"`
}

// TenantSourceRentRoll tags tenant records created from a rent roll.
const TenantSourceRentRoll = "rent_roll"

// ExtractedTenantData is the record handed to the tenant-creation flow.
// Dates are YYYY-MM-DD or empty.
type ExtractedTenantData struct {
	CurrentRent     *float64        `json:"currentRent"`
	SquareFootage   *float64        `json:"squareFootage"`
	ID              string          `json:"id"`
	TenantName      string          `json:"tenantName"`
	UnitNumber      string          `json:"unitNumber"`
	LeaseStartDate  string          `json:"leaseStartDate"`
	LeaseEndDate    string          `json:"leaseEndDate"`
	OccupancyStatus OccupancyStatus `json:"occupancyStatus"`
	Source          string          `json:"source"`
}

// ProcessingResult is the pipeline output for one uploaded file.
type ProcessingResult struct {
	Sheets           []ProcessedSheet      `json:"sheets"`
	ExtractedTenants []ExtractedTenantData `json:"extractedTenants"`
	Errors           []string              `json:"errors"`
	Summary          RentRollSummary       `json:"summary"`
	ProcessingTimeMs int64                 `json:"processingTimeMs"`
	Success          bool                  `json:"success"`
}
