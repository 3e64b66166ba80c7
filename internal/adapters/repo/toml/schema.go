package toml

import (
	"fmt"
	"strings"
)

const currentSchemaVersion = 1

// Helper subprocesses are marked with a --type= flag on the command line. A
// recorded launch argument carrying that flag belongs to a child process, not
// the window the user launched, and must never be replayed.
const helperTypeFlag = "--type="

type fileSchema struct {
	Version   int              `toml:"version"`
	Instances []instanceSchema `toml:"instances"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported instances schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type instanceSchema struct {
	ID               string   `toml:"id"`
	Name             string   `toml:"name"`
	UserDataDir      string   `toml:"user_data_dir"`
	Executable       string   `toml:"executable,omitempty"`
	ExtraArgs        []string `toml:"extra_args,omitempty"`
	AccountIDs       []string `toml:"account_ids,omitempty"`
	CurrentAccountID string   `toml:"current_account_id,omitempty"`
	IsDefault        bool     `toml:"is_default,omitempty"`
	LastLaunchArgs   []string `toml:"last_launch_args,omitempty"`
	LastRootPID      int32    `toml:"last_root_pid,omitempty"`
	CreatedAt        string   `toml:"created_at"`
}

func containsHelperFlag(args []string) bool {
	for _, arg := range args {
		if strings.Contains(arg, helperTypeFlag) {
			return true
		}
	}

	return false
}

type accountsFileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s accountsFileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID    string       `toml:"id"`
	Email string       `toml:"email,omitempty"`
	Quota *quotaSchema `toml:"quota,omitempty"`
}

type quotaSchema struct {
	Tier   string             `toml:"tier,omitempty"`
	Models []quotaModelSchema `toml:"models,omitempty"`
}

type quotaModelSchema struct {
	Name       string `toml:"name"`
	Percentage int    `toml:"percentage"`
	ResetAt    string `toml:"reset_at,omitempty"`
}
