package factories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
)

var fake = faker.New()

var interventionTypes = []string{"bus_route", "bike_lane", "low_emission_zone", "congestion_charge"}

type ScenarioFactory struct {
	Now func() time.Time
}

func (sf *ScenarioFactory) now() time.Time {
	if sf.Now != nil {
		return sf.Now()
	}
	return time.Now()
}

// CreateScenario builds a stored scenario from client input. An empty or
// missing description becomes null and missing impact metrics become 0.
func (sf *ScenarioFactory) CreateScenario(input models.ScenarioInput) *models.Scenario {
	scenario := &models.Scenario{
		ID:        uuid.New().String(),
		Data:      input.Data,
		CreatedAt: sf.now(),
	}
	if input.Name != nil {
		scenario.Name = *input.Name
	}
	if input.Description != nil && *input.Description != "" {
		desc := *input.Description
		scenario.Description = &desc
	}
	if input.TrafficReduction != nil {
		scenario.TrafficReduction = *input.TrafficReduction
	}
	if input.AQIImprovement != nil {
		scenario.AQIImprovement = *input.AQIImprovement
	}
	return scenario
}

func (sf *ScenarioFactory) CreateBaselineScenario() *models.Scenario {
	desc := "Current traffic conditions"
	return &models.Scenario{
		ID:          models.BaselineScenarioID,
		Name:        "Baseline Traffic Pattern",
		Description: &desc,
		Data:        json.RawMessage(`{"type":"baseline"}`),
		CreatedAt:   sf.now(),
	}
}

// CreateDemoScenarioInput fabricates a plausible intervention for seeding demo
// deployments.
func (sf *ScenarioFactory) CreateDemoScenarioInput() (models.ScenarioInput, error) {
	kind := interventionTypes[fake.IntBetween(0, len(interventionTypes)-1)]
	corridor := fake.Address().StreetName()
	reductionFactor := fake.Float64(2, 5, 30) / 100

	name := fmt.Sprintf("%s on %s", humanize(kind), corridor)
	description := fake.Lorem().Sentence(8)
	data, err := json.Marshal(map[string]any{
		"type":            kind,
		"corridor":        corridor,
		"reductionFactor": reductionFactor,
	})
	if err != nil {
		return models.ScenarioInput{}, fmt.Errorf("encoding demo scenario data: %w", err)
	}
	trafficReduction := reductionFactor * 100
	aqiImprovement := reductionFactor * 8

	return models.ScenarioInput{
		Name:             &name,
		Description:      &description,
		Data:             data,
		TrafficReduction: &trafficReduction,
		AQIImprovement:   &aqiImprovement,
	}, nil
}

func humanize(kind string) string {
	switch kind {
	case "bus_route":
		return "Bus route"
	case "bike_lane":
		return "Bike lane"
	case "low_emission_zone":
		return "Low emission zone"
	default:
		return "Congestion charge"
	}
}
