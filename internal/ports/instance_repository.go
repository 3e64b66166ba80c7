package ports

import (
	"context"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

type InstanceRepository interface {
	GetByID(ctx context.Context, id domain.InstanceID) (domain.Instance, error)
	List(ctx context.Context) ([]domain.Instance, error)
	Save(ctx context.Context, instance domain.Instance) error
	Delete(ctx context.Context, id domain.InstanceID) error
}
