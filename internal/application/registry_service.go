package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const DefaultInstanceName = "Default Instance"

// RegistryService owns instance records and their invariants: exactly one
// default instance, pairwise distinct user data dirs, and a current account
// that is always a member of the bound set.
type RegistryService struct {
	repo  ports.InstanceRepository
	clock ports.Clock
	locks *InstanceLocks

	// defaultUserDataDir is where the implicit default instance roots itself.
	defaultUserDataDir string

	// createMu serializes create and ensure-default, which validate against
	// the whole instance set.
	createMu sync.Mutex
}

func NewRegistryService(repo ports.InstanceRepository, clock ports.Clock, locks *InstanceLocks, defaultUserDataDir string) *RegistryService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if locks == nil {
		locks = NewInstanceLocks()
	}

	return &RegistryService{
		repo:               repo,
		clock:              clock,
		locks:              locks,
		defaultUserDataDir: defaultUserDataDir,
	}
}

func (s *RegistryService) Locks() *InstanceLocks {
	return s.locks
}

func (s *RegistryService) List(ctx context.Context) ([]domain.Instance, error) {
	instances, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	return instances, nil
}

// Summaries returns the lightweight listing projection of all instances.
func (s *RegistryService) Summaries(ctx context.Context) ([]domain.InstanceSummary, error) {
	instances, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.InstanceSummary, 0, len(instances))
	for _, instance := range instances {
		summaries = append(summaries, domain.SummaryOf(instance))
	}

	return summaries, nil
}

func (s *RegistryService) Get(ctx context.Context, id domain.InstanceID) (domain.Instance, error) {
	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("get instance %s: %w", id, err)
	}

	return instance, nil
}

func (s *RegistryService) Create(ctx context.Context, name, userDataDir string, extraArgs []string) (domain.Instance, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	instance := domain.NewInstance(domain.InstanceID(uuid.NewString()), strings.TrimSpace(name), userDataDir, s.clock.Now())
	instance.ExtraArgs = append([]string(nil), extraArgs...)

	if err := instance.Validate(); err != nil {
		return domain.Instance{}, err
	}
	if err := ensureAccessibleDir(instance.UserDataDir); err != nil {
		return domain.Instance{}, err
	}
	if err := s.checkUserDataDirUnused(ctx, instance.UserDataDir); err != nil {
		return domain.Instance{}, err
	}

	if err := s.repo.Save(ctx, instance); err != nil {
		return domain.Instance{}, fmt.Errorf("save instance: %w", err)
	}

	slog.Info("created instance", "instance", instance.ID, "name", instance.Name)
	return instance, nil
}

// Update persists a mutated instance. Identity fields are fixed at creation:
// the user data dir may not change and the default marker may not move.
func (s *RegistryService) Update(ctx context.Context, instance domain.Instance) error {
	mu := s.locks.ForInstance(instance.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.repo.GetByID(ctx, instance.ID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instance.ID, err)
	}

	if filepath.Clean(instance.UserDataDir) != existing.UserDataDir {
		return fmt.Errorf("%w: user data dir is fixed at creation", domain.ErrValidation)
	}
	if instance.IsDefault != existing.IsDefault {
		return fmt.Errorf("%w: the default marker cannot be reassigned", domain.ErrConflict)
	}
	if err := instance.Validate(); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, instance); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	return nil
}

func (s *RegistryService) Rename(ctx context.Context, id domain.InstanceID, name string) (domain.Instance, error) {
	mu := s.locks.ForInstance(id)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("get instance %s: %w", id, err)
	}

	instance.Name = strings.TrimSpace(name)
	if err := instance.Validate(); err != nil {
		return domain.Instance{}, err
	}

	if err := s.repo.Save(ctx, instance); err != nil {
		return domain.Instance{}, fmt.Errorf("save instance: %w", err)
	}

	return instance, nil
}

// Delete removes an instance after unbinding all of its accounts. The default
// instance is never deletable.
func (s *RegistryService) Delete(ctx context.Context, id domain.InstanceID) error {
	mu := s.locks.ForInstance(id)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", id, err)
	}

	if instance.IsDefault {
		return fmt.Errorf("%w: the default instance cannot be deleted", domain.ErrConflict)
	}

	for _, accountID := range append([]domain.AccountID(nil), instance.AccountIDs...) {
		instance.UnbindAccount(accountID)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}

	slog.Info("deleted instance", "instance", id)
	return nil
}

// EnsureDefault returns the default instance, creating it on first access.
// Concurrent callers observe exactly one default.
func (s *RegistryService) EnsureDefault(ctx context.Context) (domain.Instance, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	instances, err := s.repo.List(ctx)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("list instances: %w", err)
	}

	for _, instance := range instances {
		if instance.IsDefault {
			return instance, nil
		}
	}

	instance := domain.NewInstance(domain.InstanceID(uuid.NewString()), DefaultInstanceName, s.defaultUserDataDir, s.clock.Now())
	instance.IsDefault = true

	if err := instance.Validate(); err != nil {
		return domain.Instance{}, err
	}
	// A regular instance may already sit on the default dir; two instances
	// must never share a user data dir, so refuse rather than double up.
	if err := s.checkUserDataDirUnused(ctx, instance.UserDataDir); err != nil {
		return domain.Instance{}, err
	}
	if err := s.repo.Save(ctx, instance); err != nil {
		return domain.Instance{}, fmt.Errorf("save default instance: %w", err)
	}

	slog.Info("created default instance", "instance", instance.ID, "user_data_dir", instance.UserDataDir)
	return instance, nil
}

func (s *RegistryService) checkUserDataDirUnused(ctx context.Context, userDataDir string) error {
	instances, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	for _, existing := range instances {
		if existing.UserDataDir == userDataDir {
			return fmt.Errorf("%w: user data dir %q is already used by instance %s", domain.ErrConflict, userDataDir, existing.Name)
		}
	}

	return nil
}

func ensureAccessibleDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%w: user data dir %q is not a directory", domain.ErrValidation, path)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("%w: user data dir %q is not accessible: %v", domain.ErrValidation, path, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: user data dir %q is not accessible: %v", domain.ErrValidation, path, err)
	}
}
