package models

import "time"

// isoMillis matches the ISO-8601 form browsers produce with toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type LiveUpdate struct {
	Traffic   []TrafficSample   `json:"traffic"`
	Pollution []PollutionMarker `json:"pollution"`
	Timestamp string            `json:"timestamp"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func NewEnvelope(msgType string, data any, now time.Time) Envelope {
	return Envelope{Type: msgType, Data: data, Timestamp: FormatTimestamp(now)}
}

func NewLiveUpdate(traffic []TrafficSample, pollution []PollutionMarker, now time.Time) Envelope {
	return NewEnvelope(MessageLiveUpdate, LiveUpdate{
		Traffic:   traffic,
		Pollution: pollution,
		Timestamp: FormatTimestamp(now),
	}, now)
}
