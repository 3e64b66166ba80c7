package procmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

// Subprocess markers. Chromium-style applications fork helpers (renderer,
// gpu, crashpad, ...) that carry the same binary name as the window process;
// matching on those would misattribute the instance.
var helperNameFragments = []string{
	"helper", "plugin", "renderer", "gpu", "crashpad",
	"utility", "audio", "sandbox",
}

const helperTypeFlag = "--type="

const switchRequestFile = "account_switch_request.json"

type procInfo struct {
	pid    int32
	ppid   int32
	name   string
	exe    string
	args   []string
	helper bool
}

// appProcesses returns every process belonging to the managed application,
// helpers included. Failures to read an individual process are skipped; only
// a failure to list the table at all is reported, as a transient error.
func (c *Controller) appProcesses(ctx context.Context) ([]procInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list processes: %v", domain.ErrTransientQuery, err)
	}

	selfPID := int32(os.Getpid())

	infos := make([]procInfo, 0, 16)
	for _, proc := range procs {
		if proc.Pid == selfPID {
			continue
		}

		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !isAppName(c.appName, name) {
			continue
		}

		exe, _ := proc.ExeWithContext(ctx)
		args, _ := proc.CmdlineSliceWithContext(ctx)
		ppid, _ := proc.PpidWithContext(ctx)

		infos = append(infos, procInfo{
			pid:    proc.Pid,
			ppid:   ppid,
			name:   name,
			exe:    exe,
			args:   args,
			helper: isHelperProcess(name, args, exe),
		})
	}

	return infos, nil
}

// isAppName matches the application's own processes while excluding the
// manager tooling, whose binary name shares the same prefix.
func isAppName(appName, name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "tools") {
		return false
	}

	return lower == appName || lower == appName+".exe" || strings.HasPrefix(lower, appName)
}

func isHelperProcess(name string, args []string, exePath string) bool {
	for _, arg := range args {
		if strings.Contains(arg, helperTypeFlag) {
			return true
		}
	}

	lowerName := strings.ToLower(name)
	for _, fragment := range helperNameFragments {
		if strings.Contains(lowerName, fragment) {
			return true
		}
	}

	return strings.Contains(strings.ToLower(exePath), "crashpad")
}

// argsContainDir reports whether the command line references the user data
// dir. Separators are normalized so a path recorded with forward slashes
// still matches a process started with backslashes.
func argsContainDir(args []string, dir string) bool {
	if dir == "" {
		return false
	}

	joined := normalizePathSeparators(strings.ToLower(strings.Join(args, " ")))
	target := normalizePathSeparators(strings.ToLower(dir))

	return strings.Contains(joined, target)
}

func normalizePathSeparators(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}

func hasUserDataDirFlag(args []string) bool {
	for _, arg := range args {
		if strings.HasPrefix(arg, domain.UserDataDirFlag) {
			return true
		}
	}

	return false
}

// rootPIDs collapses the process tree to its top-level application processes:
// for each process, parents are walked while the parent is still the
// application binary. Each distinct top becomes one root.
func rootPIDs(infos []procInfo) []procInfo {
	byPID := make(map[int32]procInfo, len(infos))
	for _, info := range infos {
		byPID[info.pid] = info
	}

	seen := make(map[int32]bool)
	roots := make([]procInfo, 0, 4)

	for _, info := range infos {
		current := info
		// Depth cap guards against ppid cycles in a racing process table.
		for depth := 0; depth < 32; depth++ {
			parent, ok := byPID[current.ppid]
			if !ok {
				break
			}
			current = parent
		}

		if !seen[current.pid] {
			seen[current.pid] = true
			roots = append(roots, current)
		}
	}

	return roots
}

// defaultInstanceRunning looks for a root application process launched
// without --user-data-dir, which is how the default instance starts.
func (c *Controller) defaultInstanceRunning(ctx context.Context) (bool, error) {
	infos, err := c.appProcesses(ctx)
	if err != nil {
		return false, err
	}

	for _, root := range rootPIDs(infos) {
		if len(root.args) == 0 {
			continue
		}
		if !hasUserDataDirFlag(root.args) {
			return true, nil
		}
	}

	return false, nil
}

// instanceRootPIDs returns the top-level PIDs belonging to one instance. An
// instance can own several roots when multiple windows were opened.
func (c *Controller) instanceRootPIDs(ctx context.Context, instance domain.Instance) ([]int32, error) {
	infos, err := c.appProcesses(ctx)
	if err != nil {
		return nil, err
	}

	pids := make([]int32, 0, 4)
	for _, root := range rootPIDs(infos) {
		matches := argsContainDir(root.args, instance.UserDataDir)
		if !matches && instance.IsDefault {
			// The default instance launches without the isolation flag.
			matches = len(root.args) > 0 && !hasUserDataDirFlag(root.args)
		}

		if matches {
			pids = append(pids, root.pid)
		}
	}

	return pids, nil
}

type switchRequest struct {
	AccountID   string    `json:"account_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// writeSwitchRequest drops the request file via temp-file-and-rename, so the
// application never observes a partially written payload.
func writeSwitchRequest(userDataDir string, accountID domain.AccountID, now time.Time) error {
	data, err := json.Marshal(switchRequest{AccountID: string(accountID), RequestedAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("encode switch request: %w", err)
	}

	tempFile, err := os.CreateTemp(userDataDir, ".account-switch-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp switch request: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write switch request: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close switch request: %w", err)
	}

	if err := os.Rename(tempName, filepath.Join(userDataDir, switchRequestFile)); err != nil {
		return fmt.Errorf("publish switch request: %w", err)
	}

	cleanup = false
	return nil
}
