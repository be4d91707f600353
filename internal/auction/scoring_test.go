package auction

import (
	"math/rand"
	"testing"

	"github.com/peterldowns/testy/check"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

func TestCollectionComplete(t *testing.T) {
	tests := []struct {
		name      string
		target    map[string]int
		collected []string
		want      bool
	}{
		{name: "empty target", target: nil, collected: []string{"Picasso"}, want: false},
		{name: "missing artist", target: map[string]int{"Picasso": 1, "Van Gogh": 1}, collected: []string{"Picasso"}, want: false},
		{name: "exact", target: map[string]int{"Picasso": 2}, collected: []string{"Picasso", "Picasso"}, want: true},
		{name: "surplus", target: map[string]int{"Picasso": 1}, collected: []string{"Picasso", "Picasso", "Da Vinci"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Participant{ID: 1, TargetCollection: tt.target, CollectedPaintings: tt.collected}
			check.Equal(t, tt.want, CollectionComplete(p))
		})
	}
}

func TestWinners(t *testing.T) {
	cfg := models.DefaultGameConfig()

	t.Run("complete collections win", func(t *testing.T) {
		ps := []models.Participant{
			{ID: 2, TargetCollection: map[string]int{"Picasso": 1}, CollectedPaintings: []string{"Picasso"}},
			{ID: 1, TargetCollection: map[string]int{"Van Gogh": 2}, CollectedPaintings: []string{"Van Gogh", "Van Gogh", "Van Gogh"}},
			{ID: 3, TargetCollection: map[string]int{"Da Vinci": 1}},
		}
		check.Equal(t, []models.ParticipantID{1, 2}, Winners(cfg, ps))
	})

	t.Run("highest value otherwise", func(t *testing.T) {
		ps := []models.Participant{
			{ID: 1, TargetCollection: map[string]int{"Picasso": 3}, CollectedPaintings: []string{"Van Gogh"}},
			{ID: 2, TargetCollection: map[string]int{"Picasso": 3}, CollectedPaintings: []string{"Da Vinci", "Rembrandt"}},
			{ID: 3, TargetCollection: map[string]int{"Picasso": 3}, CollectedPaintings: []string{"Picasso"}},
		}
		check.Equal(t, 12, CollectionValue(cfg, ps[0]))
		check.Equal(t, 10, CollectionValue(cfg, ps[1]))
		check.Equal(t, []models.ParticipantID{1}, Winners(cfg, ps))
	})

	t.Run("ties share the win", func(t *testing.T) {
		ps := []models.Participant{
			{ID: 3},
			{ID: 1},
		}
		check.Equal(t, []models.ParticipantID{1, 3}, Winners(cfg, ps))

		standings := Standings(cfg, ps)
		check.Equal(t, models.ParticipantID(1), standings[0].ID)
		check.True(t, standings[0].Winner)
		check.True(t, standings[1].Winner)
	})
}

func TestDrawTargetCollection(t *testing.T) {
	cfg := models.DefaultGameConfig()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		target := DrawTargetCollection(cfg, rng)
		check.Equal(t, len(cfg.TargetShape), len(target))

		total := 0
		for artist, n := range target {
			_, known := cfg.ArtistsAndValues[artist]
			check.True(t, known)
			total += n
		}
		check.Equal(t, 8, total)
	}
}

func TestPrepare(t *testing.T) {
	cfg := models.DefaultGameConfig()
	cfg.RoundLimit = 10

	a := Prepare(cfg, rand.New(rand.NewSource(3)))
	b := Prepare(cfg, rand.New(rand.NewSource(3)))
	check.Equal(t, 10, len(a.PaintingOrder))
	check.Equal(t, a.PaintingOrder, b.PaintingOrder)
	check.Nil(t, a.Validate())

	// Base config is left untouched
	check.Equal(t, 0, len(cfg.PaintingOrder))

	cfg.PaintingOrder = []string{"Picasso", "Picasso", "Picasso", "Picasso", "Picasso", "Picasso", "Picasso", "Picasso", "Picasso", "Picasso"}
	fixed := Prepare(cfg, rand.New(rand.NewSource(3)))
	check.Equal(t, cfg.PaintingOrder, fixed.PaintingOrder)
}
