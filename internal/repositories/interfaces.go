package repositories

import (
	"context"

	"github.com/chrisdamba/urbansim/internal/models"
)

// ScenarioRepository stores saved simulation scenarios. It does not protect the
// baseline scenario; callers must refuse to delete it.
type ScenarioRepository interface {
	GetAll(ctx context.Context) ([]*models.Scenario, error)
	Get(ctx context.Context, id string) (*models.Scenario, bool)
	Create(ctx context.Context, input models.ScenarioInput) (*models.Scenario, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}
