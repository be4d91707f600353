package auction

import (
	"slices"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// CollectionComplete reports whether p owns at least the target count of
// every artist in its target collection. An empty target is never complete.
func CollectionComplete(p models.Participant) bool {
	if len(p.TargetCollection) == 0 {
		return false
	}
	counts := p.PaintingCounts()
	for artist, needed := range p.TargetCollection {
		if counts[artist] < needed {
			return false
		}
	}
	return true
}

// CollectionValue sums the artist values of every painting p collected
func CollectionValue(cfg models.GameConfig, p models.Participant) int {
	total := 0
	for _, painting := range p.CollectedPaintings {
		total += cfg.ArtistsAndValues[painting]
	}
	return total
}

// Winners returns the auction winners in id order: everyone with a complete
// collection, or when nobody completed one, everyone sharing the highest
// collection value.
func Winners(cfg models.GameConfig, participants []models.Participant) []models.ParticipantID {
	var complete []models.ParticipantID
	for _, p := range participants {
		if CollectionComplete(p) {
			complete = append(complete, p.ID)
		}
	}
	if len(complete) > 0 {
		slices.Sort(complete)
		return complete
	}

	best := -1
	var winners []models.ParticipantID
	for _, p := range participants {
		value := CollectionValue(cfg, p)
		switch {
		case value > best:
			best = value
			winners = []models.ParticipantID{p.ID}
		case value == best:
			winners = append(winners, p.ID)
		}
	}
	slices.Sort(winners)
	return winners
}

// Standings builds the final table, ordered by id
func Standings(cfg models.GameConfig, participants []models.Participant) []models.Standing {
	winners := Winners(cfg, participants)
	out := make([]models.Standing, 0, len(participants))
	for _, p := range participants {
		out = append(out, models.Standing{
			ID:                 p.ID,
			DisplayName:        p.DisplayName,
			Budget:             p.Budget,
			CollectedPaintings: slices.Clone(p.CollectedPaintings),
			ConnectionState:    p.ConnectionState,
			CollectionComplete: CollectionComplete(p),
			CollectionValue:    CollectionValue(cfg, p),
			Winner:             slices.Contains(winners, p.ID),
		})
	}
	slices.SortFunc(out, func(a, b models.Standing) int { return int(a.ID) - int(b.ID) })
	return out
}
