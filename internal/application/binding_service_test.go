package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

func testInstance(id domain.InstanceID, name string) domain.Instance {
	return domain.NewInstance(id, name, "/tmp/profiles/"+string(id), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
}

func newBindingFixture(t *testing.T, repo *inMemoryInstanceRepo, accounts []domain.Account) (*BindingService, *fakeProcessController) {
	t.Helper()

	registry := newTestRegistry(t, repo)
	proc := newFakeProcessController()
	svc := NewBindingService(repo, &inMemoryAccountDirectory{accounts: accounts}, proc, registry)
	return svc, proc
}

func TestBindUnknownAccountFails(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo(testInstance("inst-1", "Work"))
	svc, _ := newBindingFixture(t, repo, nil)

	err := svc.Bind(context.Background(), "ghost", "inst-1")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestBindUnknownInstanceFails(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo()
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	err := svc.Bind(context.Background(), "acc-1", "missing")
	require.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestBindThenUnbindRestoresBindings(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo(testInstance("inst-1", "Work"))
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}})

	require.NoError(t, svc.Bind(context.Background(), "acc-1", "inst-1"))
	before := repo.mustGet("inst-1").AccountIDs

	require.NoError(t, svc.Bind(context.Background(), "acc-2", "inst-1"))
	require.NoError(t, svc.Unbind(context.Background(), "acc-2", "inst-1"))

	assert.Equal(t, before, repo.mustGet("inst-1").AccountIDs)
}

func TestBindTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo(testInstance("inst-1", "Work"))
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	require.NoError(t, svc.Bind(context.Background(), "acc-1", "inst-1"))
	require.NoError(t, svc.Bind(context.Background(), "acc-1", "inst-1"))

	assert.Equal(t, []domain.AccountID{"acc-1"}, repo.mustGet("inst-1").AccountIDs)
}

func TestUnbindCurrentAccountClearsSelection(t *testing.T) {
	t.Parallel()

	instance := testInstance("inst-1", "Work")
	instance.AccountIDs = []domain.AccountID{"acc-1", "acc-2"}
	instance.CurrentAccountID = "acc-1"
	repo := newInMemoryInstanceRepo(instance)
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}})

	require.NoError(t, svc.Unbind(context.Background(), "acc-1", "inst-1"))

	stored := repo.mustGet("inst-1")
	assert.Empty(t, stored.CurrentAccountID)
	assert.Equal(t, []domain.AccountID{"acc-2"}, stored.AccountIDs)
}

func TestSetCurrentAccountRequiresBinding(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo(testInstance("inst-1", "Work"))
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	err := svc.SetCurrentAccount(context.Background(), "inst-1", "acc-1")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSetCurrentAccountOnStoppedInstanceSkipsLiveSwitch(t *testing.T) {
	t.Parallel()

	instance := testInstance("inst-1", "Work")
	instance.AccountIDs = []domain.AccountID{"acc-1"}
	repo := newInMemoryInstanceRepo(instance)
	svc, proc := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	require.NoError(t, svc.SetCurrentAccount(context.Background(), "inst-1", "acc-1"))

	assert.Empty(t, proc.switched)
	assert.Equal(t, domain.AccountID("acc-1"), repo.mustGet("inst-1").CurrentAccountID)
}

func TestSetCurrentAccountOnRunningInstancePerformsLiveSwitch(t *testing.T) {
	t.Parallel()

	instance := testInstance("inst-1", "Work")
	instance.AccountIDs = []domain.AccountID{"acc-1", "acc-2"}
	instance.CurrentAccountID = "acc-1"
	repo := newInMemoryInstanceRepo(instance)
	svc, proc := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}})
	proc.setRunning("inst-1", true)

	require.NoError(t, svc.SetCurrentAccount(context.Background(), "inst-1", "acc-2"))

	assert.Equal(t, []string{"inst-1:acc-2"}, proc.switched)
	assert.Equal(t, domain.AccountID("acc-2"), repo.mustGet("inst-1").CurrentAccountID)
}

func TestSetCurrentAccountLiveSwitchFailureLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	instance := testInstance("inst-1", "Work")
	instance.AccountIDs = []domain.AccountID{"acc-1", "acc-2"}
	instance.CurrentAccountID = "acc-1"
	repo := newInMemoryInstanceRepo(instance)
	svc, proc := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}})
	proc.setRunning("inst-1", true)
	proc.switchErr = errors.New("ipc pipe closed")

	err := svc.SetCurrentAccount(context.Background(), "inst-1", "acc-2")
	require.ErrorIs(t, err, domain.ErrExternalProcess)

	assert.Equal(t, domain.AccountID("acc-1"), repo.mustGet("inst-1").CurrentAccountID)
}

func TestSwitchAccountBindsWhenUnbound(t *testing.T) {
	t.Parallel()

	repo := newInMemoryInstanceRepo(testInstance("inst-1", "Work"))
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	require.NoError(t, svc.SwitchAccount(context.Background(), "inst-1", "acc-1"))

	stored := repo.mustGet("inst-1")
	assert.True(t, stored.HasAccount("acc-1"))
	assert.Equal(t, domain.AccountID("acc-1"), stored.CurrentAccountID)
}

func TestMigrateLegacyAccountsIsIdempotent(t *testing.T) {
	t.Parallel()

	work := testInstance("inst-1", "Work")
	work.AccountIDs = []domain.AccountID{"acc-1"}
	repo := newInMemoryInstanceRepo(work)
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}, {ID: "acc-3"}})

	migrated, err := svc.MigrateLegacyAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	defaultInstance, err := svc.InstanceForAccount(context.Background(), "acc-2")
	require.NoError(t, err)
	assert.True(t, defaultInstance.IsDefault)
	firstPass := defaultInstance.AccountIDs

	migrated, err = svc.MigrateLegacyAccounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, migrated)

	defaultInstance, err = svc.InstanceForAccount(context.Background(), "acc-2")
	require.NoError(t, err)
	assert.Equal(t, firstPass, defaultInstance.AccountIDs)
}

func TestPruneStaleBindingsDropsUnknownAccounts(t *testing.T) {
	t.Parallel()

	instance := testInstance("inst-1", "Work")
	instance.AccountIDs = []domain.AccountID{"acc-1", "gone-1", "gone-2"}
	instance.CurrentAccountID = "gone-1"
	repo := newInMemoryInstanceRepo(instance)
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}})

	pruned, err := svc.PruneStaleBindings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	stored := repo.mustGet("inst-1")
	assert.Equal(t, []domain.AccountID{"acc-1"}, stored.AccountIDs)
	assert.Empty(t, stored.CurrentAccountID)
}

func TestInstancesForAccountReturnsAllHosts(t *testing.T) {
	t.Parallel()

	first := testInstance("inst-1", "Work")
	first.AccountIDs = []domain.AccountID{"acc-1"}
	second := testInstance("inst-2", "Personal")
	second.AccountIDs = []domain.AccountID{"acc-1", "acc-2"}
	repo := newInMemoryInstanceRepo(first, second)
	svc, _ := newBindingFixture(t, repo, []domain.Account{{ID: "acc-1"}, {ID: "acc-2"}})

	instances, err := svc.InstancesForAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	ids, err := svc.AccountsForInstance(context.Background(), "inst-2")
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"acc-1", "acc-2"}, ids)
}
