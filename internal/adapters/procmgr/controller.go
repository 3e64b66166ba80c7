package procmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/viper"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const (
	appNameKey       = "app.name"
	appExecutableKey = "app.executable"
	stopTimeoutKey   = "process.stop_timeout"

	defaultAppName     = "antigravity"
	defaultStopTimeout = 10 * time.Second

	stopPollInterval = 500 * time.Millisecond
)

var errExecutableNotFound = errors.New("application executable not found")

// Controller manages application processes by scanning the process table.
// Instances are recognized by their --user-data-dir value on the command
// line; the default instance is the one launched without that flag.
type Controller struct {
	appName     string
	executable  string
	stopTimeout time.Duration
}

var _ ports.ProcessController = (*Controller)(nil)

func NewController(cfg *viper.Viper) *Controller {
	if cfg == nil {
		cfg = viper.New()
	}

	cfg.SetDefault(appNameKey, defaultAppName)
	cfg.SetDefault(stopTimeoutKey, defaultStopTimeout)

	return &Controller{
		appName:     cfg.GetString(appNameKey),
		executable:  cfg.GetString(appExecutableKey),
		stopTimeout: cfg.GetDuration(stopTimeoutKey),
	}
}

// Start spawns the application process detached, so it outlives the CLI.
func (c *Controller) Start(ctx context.Context, instance domain.Instance, args []string) error {
	exePath, err := c.resolveExecutable(ctx, instance)
	if err != nil {
		return err
	}

	cmd := exec.Command(exePath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", exePath, err)
	}

	slog.Info("spawned application process", "executable", exePath, "pid", cmd.Process.Pid, "instance", instance.ID)

	return cmd.Process.Release()
}

// IsRunning reports whether a live process belongs to the instance. The
// default instance matches root application processes launched without
// --user-data-dir; every other instance matches on its directory appearing in
// a process command line.
func (c *Controller) IsRunning(ctx context.Context, instance domain.Instance) (bool, error) {
	procs, err := c.appProcesses(ctx)
	if err != nil {
		return false, err
	}

	for _, info := range procs {
		if info.helper {
			continue
		}
		if argsContainDir(info.args, instance.UserDataDir) {
			return true, nil
		}
	}

	if instance.IsDefault {
		return c.defaultInstanceRunning(ctx)
	}

	return false, nil
}

// Stop terminates the instance's root processes. A graceful signal goes out
// first; whatever survives the timeout is killed.
func (c *Controller) Stop(ctx context.Context, instance domain.Instance) error {
	rootPIDs, err := c.instanceRootPIDs(ctx, instance)
	if err != nil {
		return err
	}
	if len(rootPIDs) == 0 {
		return nil
	}

	slog.Info("terminating instance processes", "instance", instance.ID, "pids", rootPIDs)

	for _, pid := range rootPIDs {
		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		if err := proc.TerminateWithContext(ctx); err != nil {
			slog.Warn("terminate signal failed", "pid", pid, "error", err)
		}
	}

	graceful := c.stopTimeout * 7 / 10
	deadline := time.Now().Add(graceful)
	for time.Now().Before(deadline) {
		running, err := c.IsRunning(ctx, instance)
		if err == nil && !running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPollInterval):
		}
	}

	remaining, err := c.instanceRootPIDs(ctx, instance)
	if err != nil {
		return err
	}
	for _, pid := range remaining {
		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		if err := proc.KillWithContext(ctx); err != nil {
			slog.Warn("kill signal failed", "pid", pid, "error", err)
		}
	}

	running, err := c.IsRunning(ctx, instance)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("instance %s still running after kill", instance.ID)
	}

	return nil
}

// SwitchAccount hands the running process an account switch request through a
// file drop in its user data dir. The write is atomic so the watcher on the
// other side never reads a partial request.
func (c *Controller) SwitchAccount(ctx context.Context, instance domain.Instance, accountID domain.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if instance.UserDataDir == "" {
		return errors.New("instance has no user data dir")
	}

	return writeSwitchRequest(instance.UserDataDir, accountID, time.Now())
}

// resolveExecutable finds the application binary, trying in order: the
// instance override, the configured path, a running process, standard install
// locations, and finally PATH lookup.
func (c *Controller) resolveExecutable(ctx context.Context, instance domain.Instance) (string, error) {
	for _, candidate := range []string{instance.Executable, c.executable} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		slog.Warn("configured executable missing, falling back to detection", "path", candidate)
	}

	if path, err := c.executableFromRunningProcess(ctx); err == nil && path != "" {
		return path, nil
	}

	for _, candidate := range standardLocations(c.appName) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(c.appName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", errExecutableNotFound, c.appName)
}

func (c *Controller) executableFromRunningProcess(ctx context.Context) (string, error) {
	procs, err := c.appProcesses(ctx)
	if err != nil {
		return "", err
	}

	for _, info := range procs {
		if info.helper || info.exe == "" {
			continue
		}
		return info.exe, nil
	}

	return "", errExecutableNotFound
}

func standardLocations(appName string) []string {
	locations := []string{
		filepath.Join("/usr/bin", appName),
		filepath.Join("/usr/local/bin", appName),
		filepath.Join("/opt", appName, appName),
		filepath.Join("/usr/share", appName, appName),
	}

	if home, err := os.UserHomeDir(); err == nil {
		locations = append([]string{filepath.Join(home, ".local/bin", appName)}, locations...)
	}

	return locations
}
