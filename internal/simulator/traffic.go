package simulator

import (
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
)

type trafficKey struct {
	hour      int
	reduction float64
}

func isMorningRush(hour int) bool {
	return hour >= 7 && hour <= 9
}

func isEveningRush(hour int) bool {
	return hour >= 17 && hour <= 19
}

// generateTrafficGrid draws one density per cell of the grid in x-major order.
// Rush-hour bonuses are additive and every cell consumes its draws from rng in
// sequence, so the iteration order is part of the output.
func generateTrafficGrid(rng *SeededRandom, hour int, reduction float64, now time.Time) []models.TrafficSample {
	data := make([]models.TrafficSample, 0, models.GridSize*models.GridSize)

	for x := 0; x < models.GridSize; x++ {
		for y := 0; y < models.GridSize; y++ {
			density := rng.Range(0.1, 0.4)

			if isMorningRush(hour) {
				density += rng.Range(0.3, 0.6)
			}
			if isEveningRush(hour) {
				density += rng.Range(0.4, 0.7)
			}

			density *= 1 - reduction
			density = clamp(density, 0, 1)

			data = append(data, models.TrafficSample{
				ID:        generateID(),
				GridX:     x,
				GridY:     y,
				Density:   density,
				TimeHour:  hour,
				Timestamp: now,
			})
		}
	}

	return data
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
