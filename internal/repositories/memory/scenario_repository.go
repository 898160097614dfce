package memory

import (
	"context"
	"sync"

	"github.com/chrisdamba/urbansim/internal/factories"
	"github.com/chrisdamba/urbansim/internal/models"
)

type ScenarioRepository struct {
	mu        sync.RWMutex
	scenarios map[string]*models.Scenario
	order     []string
	factory   *factories.ScenarioFactory
}

// NewScenarioRepository returns a repository seeded with the baseline scenario.
func NewScenarioRepository(factory *factories.ScenarioFactory) *ScenarioRepository {
	if factory == nil {
		factory = &factories.ScenarioFactory{}
	}
	r := &ScenarioRepository{
		scenarios: make(map[string]*models.Scenario),
		factory:   factory,
	}
	r.put(factory.CreateBaselineScenario())
	return r
}

func (r *ScenarioRepository) put(s *models.Scenario) {
	if _, exists := r.scenarios[s.ID]; !exists {
		r.order = append(r.order, s.ID)
	}
	r.scenarios[s.ID] = s
}

// GetAll returns scenarios in insertion order.
func (r *ScenarioRepository) GetAll(ctx context.Context) ([]*models.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Scenario, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.scenarios[id])
	}
	return out, nil
}

func (r *ScenarioRepository) Get(ctx context.Context, id string) (*models.Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[id]
	return s, ok
}

func (r *ScenarioRepository) Create(ctx context.Context, input models.ScenarioInput) (*models.Scenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scenario := r.factory.CreateScenario(input)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(scenario)
	return scenario, nil
}

func (r *ScenarioRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scenarios[id]; !ok {
		return false, nil
	}
	delete(r.scenarios, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *ScenarioRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenarios), nil
}
