package factories

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
)

func TestCreateScenarioDefaults(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sf := &ScenarioFactory{Now: func() time.Time { return created }}

	name := "Bus lane"
	s := sf.CreateScenario(models.ScenarioInput{Name: &name, Data: json.RawMessage(`{"route":1}`)})
	if s.ID == "" {
		t.Fatal("expected an id")
	}
	if s.Description != nil {
		t.Fatalf("description=%q want nil", *s.Description)
	}
	if s.TrafficReduction != 0 || s.AQIImprovement != 0 {
		t.Fatalf("reductions=%v/%v want 0/0", s.TrafficReduction, s.AQIImprovement)
	}
	if !s.CreatedAt.Equal(created) {
		t.Fatalf("createdAt=%v want %v", s.CreatedAt, created)
	}

	empty := ""
	s = sf.CreateScenario(models.ScenarioInput{Name: &name, Description: &empty, Data: json.RawMessage(`{}`)})
	if s.Description != nil {
		t.Fatal("empty description should be stored as null")
	}
}

func TestCreateScenarioUniqueIDs(t *testing.T) {
	sf := &ScenarioFactory{}
	name := "x"
	a := sf.CreateScenario(models.ScenarioInput{Name: &name, Data: json.RawMessage(`1`)})
	b := sf.CreateScenario(models.ScenarioInput{Name: &name, Data: json.RawMessage(`1`)})
	if a.ID == b.ID {
		t.Fatalf("duplicate id %q", a.ID)
	}
}

func TestCreateDemoScenarioInput(t *testing.T) {
	sf := &ScenarioFactory{}
	in, err := sf.CreateDemoScenarioInput()
	if err != nil {
		t.Fatalf("CreateDemoScenarioInput: %v", err)
	}
	if in.Name == nil || *in.Name == "" {
		t.Fatal("demo scenario needs a name")
	}
	var data map[string]any
	if err := json.Unmarshal(in.Data, &data); err != nil {
		t.Fatalf("demo data is not JSON: %v", err)
	}
	rf, ok := data["reductionFactor"].(float64)
	if !ok || rf < 0.05 || rf > 0.3 {
		t.Fatalf("reductionFactor=%v out of range", data["reductionFactor"])
	}
	if *in.TrafficReduction < 5 || *in.TrafficReduction > 30 {
		t.Fatalf("trafficReduction=%v", *in.TrafficReduction)
	}
}
