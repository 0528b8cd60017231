// Package summary aggregates extracted units into rent-roll summaries.
package summary

import (
	"math"

	"github.com/stwalsh4118/rentroll/internal/models"
)

// Summarize aggregates a unit list. Rent and square-footage averages only
// count units with a positive value; an empty list yields all zeros.
func Summarize(units []models.RentRollUnit) models.RentRollSummary {
	var (
		s                    models.RentRollSummary
		rentCount, sqftCount int
		totalSqft            float64
	)
	s.TotalUnits = len(units)

	for _, u := range units {
		switch u.OccupancyStatus {
		case models.StatusOccupied:
			s.OccupiedUnits++
		case models.StatusVacant:
			s.VacantUnits++
		}
		if u.CurrentRent != nil && *u.CurrentRent > 0 {
			s.TotalRent += *u.CurrentRent
			rentCount++
		}
		if u.SquareFootage != nil && *u.SquareFootage > 0 {
			totalSqft += *u.SquareFootage
			sqftCount++
		}
	}

	if rentCount > 0 {
		s.AverageRent = s.TotalRent / float64(rentCount)
	}
	if sqftCount > 0 {
		s.AverageSqft = totalSqft / float64(sqftCount)
	}
	if s.TotalUnits > 0 {
		s.OccupancyRate = Round2(float64(s.OccupiedUnits) / float64(s.TotalUnits) * 100)
	}
	return s
}

// Combine summarizes the units of several processed sheets as one portfolio.
func Combine(sheets []models.ProcessedSheet) models.RentRollSummary {
	var all []models.RentRollUnit
	for _, sh := range sheets {
		all = append(all, sh.Data...)
	}
	return Summarize(all)
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
