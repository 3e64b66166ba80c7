package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

// BindingService maintains the account-to-instance relation. Accounts are
// owned by the external account manager; this service only records which
// instance may host them and which one is current.
type BindingService struct {
	repo     ports.InstanceRepository
	accounts ports.AccountDirectory
	proc     ports.ProcessController
	registry *RegistryService
	locks    *InstanceLocks
}

func NewBindingService(repo ports.InstanceRepository, accounts ports.AccountDirectory, proc ports.ProcessController, registry *RegistryService) *BindingService {
	return &BindingService{
		repo:     repo,
		accounts: accounts,
		proc:     proc,
		registry: registry,
		locks:    registry.Locks(),
	}
}

// Bind adds the account to the instance's bound set. Binding twice is a no-op.
func (s *BindingService) Bind(ctx context.Context, accountID domain.AccountID, instanceID domain.InstanceID) error {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return fmt.Errorf("get account %s: %w", accountID, err)
	}

	mu := s.locks.ForInstance(instanceID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instanceID, err)
	}

	instance.BindAccount(accountID)

	if err := s.repo.Save(ctx, instance); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	slog.Info("bound account to instance", "account", accountID, "instance", instanceID)
	return nil
}

// Unbind removes the account from the instance's bound set, clearing the
// current selection when it pointed at the removed account.
func (s *BindingService) Unbind(ctx context.Context, accountID domain.AccountID, instanceID domain.InstanceID) error {
	mu := s.locks.ForInstance(instanceID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instanceID, err)
	}

	instance.UnbindAccount(accountID)

	if err := s.repo.Save(ctx, instance); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	slog.Info("unbound account from instance", "account", accountID, "instance", instanceID)
	return nil
}

// SetCurrentAccount marks an already bound account as the instance's current
// one. On a running instance the live in-process switch must succeed before
// the registry change is committed; on failure nothing is changed.
func (s *BindingService) SetCurrentAccount(ctx context.Context, instanceID domain.InstanceID, accountID domain.AccountID) error {
	mu := s.locks.ForInstance(instanceID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instanceID, err)
	}

	if !instance.HasAccount(accountID) {
		return fmt.Errorf("%w: account %s is not bound to instance %s", domain.ErrValidation, accountID, instanceID)
	}

	return s.commitCurrentAccount(ctx, instance, accountID)
}

// SwitchAccount is the bind-if-needed entry point: it binds the account when
// it is not yet bound, then makes it current.
func (s *BindingService) SwitchAccount(ctx context.Context, instanceID domain.InstanceID, accountID domain.AccountID) error {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return fmt.Errorf("get account %s: %w", accountID, err)
	}

	mu := s.locks.ForInstance(instanceID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instanceID, err)
	}

	instance.BindAccount(accountID)

	return s.commitCurrentAccount(ctx, instance, accountID)
}

// commitCurrentAccount performs the live switch on a running instance and
// persists the new current account only after it succeeds. Callers hold the
// instance lock.
func (s *BindingService) commitCurrentAccount(ctx context.Context, instance domain.Instance, accountID domain.AccountID) error {
	running, err := s.proc.IsRunning(ctx, instance)
	if err != nil {
		slog.Warn("status query failed, assuming instance is stopped", "instance", instance.ID, "error", err)
		running = false
	}

	if running {
		if err := s.proc.SwitchAccount(ctx, instance, accountID); err != nil {
			return fmt.Errorf("%w: live switch to account %s in instance %s: %v", domain.ErrExternalProcess, accountID, instance.ID, err)
		}
	}

	instance.CurrentAccountID = accountID

	if err := s.repo.Save(ctx, instance); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	slog.Info("set current account", "account", accountID, "instance", instance.ID, "live_switch", running)
	return nil
}

// MigrateLegacyAccounts binds every account that belongs to no instance to the
// default instance, creating the default first if needed. Running it again is
// a no-op.
func (s *BindingService) MigrateLegacyAccounts(ctx context.Context) (int, error) {
	defaultInstance, err := s.registry.EnsureDefault(ctx)
	if err != nil {
		return 0, err
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	instances, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}

	bound := map[domain.AccountID]struct{}{}
	for _, instance := range instances {
		for _, accountID := range instance.AccountIDs {
			bound[accountID] = struct{}{}
		}
	}

	orphans := make([]domain.AccountID, 0, len(accounts))
	for _, account := range accounts {
		if _, ok := bound[account.ID]; !ok {
			orphans = append(orphans, account.ID)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}

	mu := s.locks.ForInstance(defaultInstance.ID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, defaultInstance.ID)
	if err != nil {
		return 0, fmt.Errorf("get default instance: %w", err)
	}

	for _, accountID := range orphans {
		instance.BindAccount(accountID)
	}

	if err := s.repo.Save(ctx, instance); err != nil {
		return 0, fmt.Errorf("save default instance: %w", err)
	}

	slog.Info("migrated legacy accounts to default instance", "count", len(orphans))
	return len(orphans), nil
}

// PruneStaleBindings drops bindings that refer to accounts the external
// account manager no longer knows about.
func (s *BindingService) PruneStaleBindings(ctx context.Context) (int, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	known := map[domain.AccountID]struct{}{}
	for _, account := range accounts {
		known[account.ID] = struct{}{}
	}

	instances, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}

	pruned := 0
	for _, listed := range instances {
		stale := make([]domain.AccountID, 0)
		for _, accountID := range listed.AccountIDs {
			if _, ok := known[accountID]; !ok {
				stale = append(stale, accountID)
			}
		}
		if len(stale) == 0 {
			continue
		}

		mu := s.locks.ForInstance(listed.ID)
		mu.Lock()
		instance, err := s.repo.GetByID(ctx, listed.ID)
		if err != nil {
			mu.Unlock()
			if errors.Is(err, domain.ErrInstanceNotFound) {
				continue
			}
			return pruned, fmt.Errorf("get instance %s: %w", listed.ID, err)
		}

		for _, accountID := range stale {
			if instance.HasAccount(accountID) {
				instance.UnbindAccount(accountID)
				pruned++
			}
		}

		if err := s.repo.Save(ctx, instance); err != nil {
			mu.Unlock()
			return pruned, fmt.Errorf("save instance %s: %w", listed.ID, err)
		}
		mu.Unlock()
	}

	if pruned > 0 {
		slog.Info("pruned stale account bindings", "count", pruned)
	}

	return pruned, nil
}

// AccountsForInstance returns the ids bound to one instance.
func (s *BindingService) AccountsForInstance(ctx context.Context, instanceID domain.InstanceID) ([]domain.AccountID, error) {
	instance, err := s.repo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}

	return append([]domain.AccountID(nil), instance.AccountIDs...), nil
}

// InstancesForAccount returns every instance the account is bound to.
func (s *BindingService) InstancesForAccount(ctx context.Context, accountID domain.AccountID) ([]domain.Instance, error) {
	instances, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	matches := make([]domain.Instance, 0)
	for _, instance := range instances {
		if instance.HasAccount(accountID) {
			matches = append(matches, instance)
		}
	}

	return matches, nil
}

// InstanceForAccount returns the first instance hosting the account.
func (s *BindingService) InstanceForAccount(ctx context.Context, accountID domain.AccountID) (domain.Instance, error) {
	instances, err := s.repo.List(ctx)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("list instances: %w", err)
	}

	for _, instance := range instances {
		if instance.HasAccount(accountID) {
			return instance, nil
		}
	}

	return domain.Instance{}, fmt.Errorf("account %s: %w", accountID, domain.ErrInstanceNotFound)
}
