package ports

import (
	"context"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

// ProcessController is the external OS process collaborator. Start spawns the
// instance with the given command line, Stop terminates it, IsRunning reports
// whether a live process is rooted at the instance's user data dir, and
// SwitchAccount performs a live in-process account switch on a running
// instance.
type ProcessController interface {
	Start(ctx context.Context, instance domain.Instance, args []string) error
	Stop(ctx context.Context, instance domain.Instance) error
	IsRunning(ctx context.Context, instance domain.Instance) (bool, error)
	SwitchAccount(ctx context.Context, instance domain.Instance, accountID domain.AccountID) error
}
