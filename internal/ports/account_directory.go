package ports

import (
	"context"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

// AccountDirectory is the read-only view of the external account manager's
// store. Accounts are never created or deleted through this core.
type AccountDirectory interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
}
