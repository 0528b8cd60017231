package extractor

import (
	"github.com/stwalsh4118/rentroll/internal/models"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

// InferOccupancy derives a unit's status from its status text and tenant.
// Status words are checked in the order vacant, notice, pending, occupied;
// without a recognizable status the tenant decides. A sheet that maps neither
// a status nor a tenant column yields unknown.
func InferOccupancy(vocab *vocabulary.Vocabulary, status string, hasStatus bool, tenant string, hasTenant bool) models.OccupancyStatus {
	if !hasStatus && !hasTenant {
		return models.StatusUnknown
	}

	text := vocabulary.Normalize(status)
	words := vocab.StatusWords
	switch {
	case matches(text, words.Vacant):
		return models.StatusVacant
	case matches(text, words.Notice):
		return models.StatusNotice
	case matches(text, words.Pending):
		return models.StatusPending
	case matches(text, words.Occupied):
		return models.StatusOccupied
	}

	if tenant != "" {
		return models.StatusOccupied
	}
	return models.StatusVacant
}

func matches(text string, phrases []string) bool {
	_, ok := vocabulary.MatchAny(text, phrases)
	return ok
}
