// Package tenants converts extracted rent-roll units into tenant records for
// the tenant-creation flow.
package tenants

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/rentroll/internal/models"
)

// IDFunc generates record identifiers.
type IDFunc func() string

// Converter turns processed sheets into tenant records.
type Converter interface {
	// Convert returns one record per occupied unit with a tenant name, in
	// sheet then row order.
	Convert(sheets []models.ProcessedSheet) []models.ExtractedTenantData
}

type converter struct {
	newID IDFunc
}

// NewConverter creates a Converter that assigns random UUIDs.
func NewConverter() Converter {
	return NewConverterWithIDs(uuid.NewString)
}

// NewConverterWithIDs creates a Converter with a custom id generator.
func NewConverterWithIDs(newID IDFunc) Converter {
	return &converter{newID: newID}
}

func (c *converter) Convert(sheets []models.ProcessedSheet) []models.ExtractedTenantData {
	out := []models.ExtractedTenantData{}
	for _, sheet := range sheets {
		for _, u := range sheet.Data {
			name := strings.TrimSpace(u.TenantName)
			if u.OccupancyStatus != models.StatusOccupied || name == "" {
				continue
			}
			out = append(out, models.ExtractedTenantData{
				ID:              c.newID(),
				TenantName:      name,
				UnitNumber:      u.UnitNumber,
				CurrentRent:     u.CurrentRent,
				SquareFootage:   u.SquareFootage,
				LeaseStartDate:  formatDate(u.LeaseStart),
				LeaseEndDate:    formatDate(u.LeaseEnd),
				OccupancyStatus: u.OccupancyStatus,
				Source:          models.TenantSourceRentRoll,
			})
		}
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}
