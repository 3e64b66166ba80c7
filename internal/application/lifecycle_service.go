package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

// LifecycleService drives the Stopped/Running state of instance processes.
//
// Start on an already running instance fails with a conflict rather than
// spawning a second window; Stop on a stopped instance is a no-op. Status
// queries fail safe: a transient query failure reads as "not running".
type LifecycleService struct {
	repo  ports.InstanceRepository
	proc  ports.ProcessController
	locks *InstanceLocks
}

func NewLifecycleService(repo ports.InstanceRepository, proc ports.ProcessController, locks *InstanceLocks) *LifecycleService {
	if locks == nil {
		locks = NewInstanceLocks()
	}

	return &LifecycleService{repo: repo, proc: proc, locks: locks}
}

// Start launches the instance process and records the arguments actually
// used, so a later restart reproduces the same command line.
func (s *LifecycleService) Start(ctx context.Context, id domain.InstanceID) error {
	mu := s.locks.ForInstance(id)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", id, err)
	}

	if s.isRunning(ctx, instance) {
		return fmt.Errorf("%w: instance %s is already running", domain.ErrConflict, id)
	}

	args := instance.LaunchArgs()
	if len(instance.LastLaunchArgs) > 0 {
		args = append([]string(nil), instance.LastLaunchArgs...)
	}

	if err := s.proc.Start(ctx, instance, args); err != nil {
		return fmt.Errorf("%w: start instance %s: %v", domain.ErrExternalProcess, id, err)
	}

	instance.LastLaunchArgs = append([]string(nil), args...)
	if err := s.repo.Save(ctx, instance); err != nil {
		return fmt.Errorf("record launch args: %w", err)
	}

	slog.Info("started instance", "instance", id, "args", args)
	return nil
}

// Stop terminates the instance process. Stopping a stopped instance is a
// no-op.
func (s *LifecycleService) Stop(ctx context.Context, id domain.InstanceID) error {
	mu := s.locks.ForInstance(id)
	mu.Lock()
	defer mu.Unlock()

	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", id, err)
	}

	if !s.isRunning(ctx, instance) {
		return nil
	}

	if err := s.proc.Stop(ctx, instance); err != nil {
		return fmt.Errorf("%w: stop instance %s: %v", domain.ErrExternalProcess, id, err)
	}

	slog.Info("stopped instance", "instance", id)
	return nil
}

// Restart stops the instance when running and starts it again with its
// recorded launch arguments.
func (s *LifecycleService) Restart(ctx context.Context, id domain.InstanceID) error {
	if err := s.Stop(ctx, id); err != nil {
		return err
	}

	return s.Start(ctx, id)
}

// Status reports whether a live process is rooted at the instance's user data
// dir. Transient query failures read as false.
func (s *LifecycleService) Status(ctx context.Context, id domain.InstanceID) (bool, error) {
	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get instance %s: %w", id, err)
	}

	return s.isRunning(ctx, instance), nil
}

// RunningInstances returns all instances with a live process.
func (s *LifecycleService) RunningInstances(ctx context.Context) ([]domain.Instance, error) {
	instances, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	running := make([]domain.Instance, 0, len(instances))
	for _, instance := range instances {
		if s.isRunning(ctx, instance) {
			running = append(running, instance)
		}
	}

	return running, nil
}

func (s *LifecycleService) isRunning(ctx context.Context, instance domain.Instance) bool {
	running, err := s.proc.IsRunning(ctx, instance)
	if err != nil {
		slog.Warn("status query failed, reporting stopped", "instance", instance.ID, "error", err)
		return false
	}

	return running
}
