package auction

import (
	"math/rand"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// Prepare returns a copy of base ready for one auction instance. A base
// without a painting order gets a fresh random one of RoundLimit paintings;
// a configured order is kept as is.
func Prepare(base models.GameConfig, rng *rand.Rand) models.GameConfig {
	cfg := base.Clone()
	if len(cfg.PaintingOrder) == 0 {
		cfg.PaintingOrder = DrawPaintingOrder(cfg, rng)
	}
	return cfg
}

// DrawPaintingOrder picks RoundLimit paintings uniformly from the artists
func DrawPaintingOrder(cfg models.GameConfig, rng *rand.Rand) []string {
	artists := cfg.Artists()
	if len(artists) == 0 || cfg.RoundLimit <= 0 {
		return nil
	}
	order := make([]string, cfg.RoundLimit)
	for i := range order {
		order[i] = artists[rng.Intn(len(artists))]
	}
	return order
}

// DrawTargetCollection assigns the counts of cfg.TargetShape to distinct,
// randomly chosen artists.
func DrawTargetCollection(cfg models.GameConfig, rng *rand.Rand) map[string]int {
	artists := Shuffle(cfg.Artists(), rng)
	target := make(map[string]int, len(cfg.TargetShape))
	for i, count := range cfg.TargetShape {
		if i >= len(artists) {
			break
		}
		target[artists[i]] = count
	}
	return target
}

// Shuffle permutes array in place (Fisher-Yates) and returns it
func Shuffle(array []string, rng *rand.Rand) []string {
	for i := len(array) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		array[i], array[j] = array[j], array[i]
	}
	return array
}
