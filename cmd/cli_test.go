package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dev")
}

func TestInstanceCreateAndListShowsInstance(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home,
		"instance", "create",
		"--name", "work",
		"--dir", filepath.Join(home, "profiles", "work"),
	)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "instance", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "instances: 1")
	assert.Contains(t, stdout, "work")
	assert.Contains(t, stdout, "stopped")
}

func TestInstanceCreateRejectsReusedUserDataDir(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "profiles", "work")

	_, _, err := executeCLI(t, home, "instance", "create", "--name", "work", "--dir", dir)
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "instance", "create", "--name", "clone", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")
}

func TestInstanceRenameShowsNewName(t *testing.T) {
	home := t.TempDir()
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "instance", "rename", id, "play")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "instance", "show", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "name:\tplay")
}

func TestInstanceDeleteRemovesInstance(t *testing.T) {
	home := t.TempDir()
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "instance", "delete", id)
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "instance", "show", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance not found")
}

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	home := t.TempDir()

	first, _, err := executeCLI(t, home, "instance", "ensure-default")
	require.NoError(t, err)

	second, _, err := executeCLI(t, home, "instance", "ensure-default")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDefaultInstanceCannotBeDeleted(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "instance", "ensure-default")
	require.NoError(t, err)
	id := idFromParens(t, stdout)

	_, _, err = executeCLI(t, home, "instance", "delete", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be deleted")
}

func TestInstanceStatusReportsStopped(t *testing.T) {
	home := t.TempDir()
	id := createInstance(t, home, "work")

	stdout, _, err := executeCLI(t, home, "instance", "status", id)
	require.NoError(t, err)
	assert.Equal(t, "stopped\n", stdout)
}

func TestAccountBindAndSetCurrent(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	stdout, _, err := executeCLI(t, home, "account", "current", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "no current account")

	_, _, err = executeCLI(t, home, "account", "bind", "acc-1", "--instance", id)
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "account", "current", id, "--set", "acc-1")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "account", "current", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "acc-1")

	stdout, _, err = executeCLI(t, home, "instance", "show", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "acc-1 (current)")
}

func TestAccountSetCurrentRequiresBinding(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "account", "current", id, "--set", "acc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bound")
}

func TestAccountBindUnknownAccountFails(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "account", "bind", "acc-404", "--instance", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestAccountSwitchBindsAndSetsCurrent(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "account", "switch", "acc-2", "--instance", id)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "account", "current", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "acc-2")
}

func TestAccountMigrateBindsUnboundAccountsToDefault(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "account", "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "migrated 2 account(s)")

	stdout, _, err = executeCLI(t, home, "account", "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "migrated 0 account(s)")
}

func TestAccountListShowsTier(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "acc-1")
	assert.Contains(t, stdout, "dev@example.com")
	assert.Contains(t, stdout, "pro")
}

func TestAccountInstancesListsBindings(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "account", "bind", "acc-1", "--instance", id)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "account", "instances", "acc-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "work")
}

func TestRecommendPicksBestAccountPerCategory(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "recommend")
	require.NoError(t, err)

	// gemini blends 0.7*80 + 0.3*55 for acc-1; claude takes acc-2's raw 90.
	assert.Contains(t, stdout, "gemini\tacc-1\t73%")
	assert.Contains(t, stdout, "claude\tacc-2\t90%")
}

func TestRecommendJSONOutput(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "recommend", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"Category\"")
	assert.Contains(t, stdout, "\"AccountID\"")
}

func TestRecommendExcludesInstanceCurrentAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	id := createInstance(t, home, "work")

	_, _, err := executeCLI(t, home, "account", "switch", "acc-1", "--instance", id)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "recommend", "--instance", id)
	require.NoError(t, err)

	// With acc-1 out, both categories want acc-2; claude's raw 90 outbids
	// gemini's blended 42, so gemini yields rather than duplicate the pick.
	assert.Contains(t, stdout, "claude\tacc-2\t90%")
	assert.NotContains(t, stdout, "acc-1")
	assert.NotContains(t, stdout, "gemini")
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "watch", "--interval=0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval must be positive")

	_, _, err = executeCLI(t, home, "watch", "--interval=-1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval must be positive")
}

func TestRecommendWithoutAccountsPrintsNothingUseful(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "recommend")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no accounts with remaining quota")
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func createInstance(t *testing.T, home, name string) string {
	t.Helper()

	stdout, _, err := executeCLI(t, home,
		"instance", "create",
		"--name", name,
		"--dir", filepath.Join(home, "profiles", name),
	)
	require.NoError(t, err)

	return idFromParens(t, stdout)
}

// idFromParens pulls the instance id out of "... <name> (<id>)" output.
func idFromParens(t *testing.T, stdout string) string {
	t.Helper()

	start := strings.LastIndex(stdout, "(")
	end := strings.LastIndex(stdout, ")")
	require.True(t, start >= 0 && end > start, "no parenthesized id in %q", stdout)

	return stdout[start+1 : end]
}

func writeAccountsFixture(home string) error {
	configDir := filepath.Join(home, ".antigravity_tools")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	accounts := `version = 1

[[accounts]]
id = "acc-1"
email = "dev@example.com"

[accounts.quota]
tier = "pro"

[[accounts.quota.models]]
name = "gemini-3-pro"
percentage = 80

[[accounts.quota.models]]
name = "gemini-3-flash"
percentage = 55

[[accounts.quota.models]]
name = "claude-sonnet-4-5"
percentage = 40

[[accounts]]
id = "acc-2"
email = "ops@example.com"

[accounts.quota]
tier = "free"

[[accounts.quota.models]]
name = "gemini-3-pro"
percentage = 60

[[accounts.quota.models]]
name = "claude-sonnet-4-5"
percentage = 90
`

	return os.WriteFile(filepath.Join(configDir, "accounts.toml"), []byte(accounts), 0o644)
}
