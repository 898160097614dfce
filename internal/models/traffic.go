package models

import "time"

// TrafficSample is the density of one grid cell for a given hour of the day.
type TrafficSample struct {
	ID        string    `json:"id"`
	GridX     int       `json:"gridX"`
	GridY     int       `json:"gridY"`
	Density   float64   `json:"density"` // normalized occupancy in [0,1]
	TimeHour  int       `json:"timeHour"`
	Timestamp time.Time `json:"timestamp"`
}

type TrafficStatistics struct {
	TrafficReduction float64 `json:"trafficReduction"`
	AQIImprovement   float64 `json:"aqiImprovement"`
	AvgDensity       float64 `json:"avgDensity"`
}

type BusSimulationResult struct {
	TrafficData []TrafficSample   `json:"trafficData"`
	Statistics  TrafficStatistics `json:"statistics"`
}

// AverageDensity returns the mean density of the samples, 0 for an empty slice.
func AverageDensity(samples []TrafficSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		total += s.Density
	}
	return total / float64(len(samples))
}
