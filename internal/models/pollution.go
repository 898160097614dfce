package models

import "time"

type PollutionMarker struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AQI       int       `json:"aqi"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// LevelForAQI maps an AQI score to its coarse category.
func LevelForAQI(aqi int) string {
	switch {
	case aqi > 100:
		return LevelHigh
	case aqi > 50:
		return LevelModerate
	default:
		return LevelGood
	}
}

func (m PollutionMarker) Location() Location {
	return Location{Lat: m.Lat, Lon: m.Lng}
}
