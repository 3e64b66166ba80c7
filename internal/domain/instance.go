package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type InstanceID string

// UserDataDirFlag is the isolation flag every non-default instance is launched
// with. Processes are matched back to instances through it.
const UserDataDirFlag = "--user-data-dir"

// Instance is an independently launched application process rooted at its own
// user data directory. One instance can host several bound accounts, of which
// at most one is current.
type Instance struct {
	ID               InstanceID
	Name             string
	UserDataDir      string
	Executable       string
	ExtraArgs        []string
	AccountIDs       []AccountID
	CurrentAccountID AccountID
	IsDefault        bool
	LastLaunchArgs   []string
	LastRootPID      int32
	CreatedAt        time.Time
}

func NewInstance(id InstanceID, name, userDataDir string, now time.Time) Instance {
	return Instance{
		ID:          id,
		Name:        name,
		UserDataDir: filepath.Clean(userDataDir),
		CreatedAt:   now,
	}
}

func (i Instance) Validate() error {
	if strings.TrimSpace(string(i.ID)) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(i.UserDataDir) == "" {
		return fmt.Errorf("%w: user data dir is required", ErrValidation)
	}
	if !filepath.IsAbs(i.UserDataDir) {
		return fmt.Errorf("%w: user data dir %q is not absolute", ErrValidation, i.UserDataDir)
	}
	if i.CurrentAccountID != "" && !i.HasAccount(i.CurrentAccountID) {
		return fmt.Errorf("%w: current account %s is not bound", ErrValidation, i.CurrentAccountID)
	}

	return nil
}

func (i Instance) HasAccount(accountID AccountID) bool {
	for _, id := range i.AccountIDs {
		if id == accountID {
			return true
		}
	}

	return false
}

// BindAccount adds the account to the bound set. Binding an already bound
// account is a no-op.
func (i *Instance) BindAccount(accountID AccountID) {
	if i.HasAccount(accountID) {
		return
	}

	i.AccountIDs = append(i.AccountIDs, accountID)
}

// UnbindAccount removes the account from the bound set. If it was the current
// account, the current selection is cleared; no replacement is chosen.
func (i *Instance) UnbindAccount(accountID AccountID) {
	kept := i.AccountIDs[:0]
	for _, id := range i.AccountIDs {
		if id != accountID {
			kept = append(kept, id)
		}
	}
	i.AccountIDs = kept

	if i.CurrentAccountID == accountID {
		i.CurrentAccountID = ""
	}
}

// LaunchArgs builds the command line for this instance. The default instance
// runs without the user-data-dir flag so it attaches to the stock profile.
func (i Instance) LaunchArgs() []string {
	args := make([]string, 0, len(i.ExtraArgs)+2)

	if !i.IsDefault {
		args = append(args, UserDataDirFlag, i.UserDataDir)
	}

	args = append(args, i.ExtraArgs...)
	return args
}

// InstanceSummary is the lightweight listing projection of an Instance.
type InstanceSummary struct {
	ID           InstanceID
	Name         string
	UserDataDir  string
	IsDefault    bool
	AccountCount int
}

func SummaryOf(instance Instance) InstanceSummary {
	return InstanceSummary{
		ID:           instance.ID,
		Name:         instance.Name,
		UserDataDir:  instance.UserDataDir,
		IsDefault:    instance.IsDefault,
		AccountCount: len(instance.AccountIDs),
	}
}
