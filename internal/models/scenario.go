package models

import (
	"encoding/json"
	"time"
)

type Scenario struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	Data             json.RawMessage `json:"data"`
	TrafficReduction float64         `json:"trafficReduction"`
	AQIImprovement   float64         `json:"aqiImprovement"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// ScenarioInput is the client-supplied shape of a new scenario. Pointer fields
// distinguish "absent" from zero values.
type ScenarioInput struct {
	Name             *string         `json:"name" validate:"required"`
	Description      *string         `json:"description"`
	Data             json.RawMessage `json:"data" validate:"required"`
	TrafficReduction *float64        `json:"trafficReduction"`
	AQIImprovement   *float64        `json:"aqiImprovement"`
}

// BusSimulationRequest accepts any JSON number for timeHour; fractional hours
// are truncated toward zero.
type BusSimulationRequest struct {
	TimeHour        *float64 `json:"timeHour"`
	ReductionFactor *float64 `json:"reductionFactor"`
}
