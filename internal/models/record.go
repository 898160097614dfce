package models

// TrafficRecord is the flat archive row for one traffic sample.
type TrafficRecord struct {
	ID        string  `json:"id"`
	GridX     int     `json:"grid_x"`
	GridY     int     `json:"grid_y"`
	Density   float64 `json:"density"`
	TimeHour  int     `json:"time_hour"`
	Reduction float64 `json:"reduction"`
	Timestamp int64   `json:"timestamp"`
}

// PollutionRecord is the flat archive row for one pollution marker.
type PollutionRecord struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AQI       int     `json:"aqi"`
	Level     string  `json:"level"`
	Timestamp int64   `json:"timestamp"`
}

func NewTrafficRecord(s TrafficSample, reduction float64) TrafficRecord {
	return TrafficRecord{
		ID:        s.ID,
		GridX:     s.GridX,
		GridY:     s.GridY,
		Density:   s.Density,
		TimeHour:  s.TimeHour,
		Reduction: reduction,
		Timestamp: s.Timestamp.Unix(),
	}
}

func NewPollutionRecord(m PollutionMarker) PollutionRecord {
	return PollutionRecord{
		ID:        m.ID,
		Lat:       m.Lat,
		Lng:       m.Lng,
		AQI:       m.AQI,
		Level:     m.Level,
		Timestamp: m.Timestamp.Unix(),
	}
}
