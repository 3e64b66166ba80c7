package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

type inMemoryInstanceRepo struct {
	mu        sync.Mutex
	instances map[domain.InstanceID]domain.Instance
	saveErr   error
}

func newInMemoryInstanceRepo(instances ...domain.Instance) *inMemoryInstanceRepo {
	repo := &inMemoryInstanceRepo{instances: map[domain.InstanceID]domain.Instance{}}
	for _, instance := range instances {
		repo.instances[instance.ID] = instance
	}
	return repo
}

func (r *inMemoryInstanceRepo) GetByID(_ context.Context, id domain.InstanceID) (domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.instances[id]
	if !ok {
		return domain.Instance{}, domain.ErrInstanceNotFound
	}
	return instance, nil
}

func (r *inMemoryInstanceRepo) List(_ context.Context) ([]domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances := make([]domain.Instance, 0, len(r.instances))
	for _, instance := range r.instances {
		instances = append(instances, instance)
	}
	return instances, nil
}

func (r *inMemoryInstanceRepo) Save(_ context.Context, instance domain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	r.instances[instance.ID] = instance
	return nil
}

func (r *inMemoryInstanceRepo) Delete(_ context.Context, id domain.InstanceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[id]; !ok {
		return domain.ErrInstanceNotFound
	}
	delete(r.instances, id)
	return nil
}

func (r *inMemoryInstanceRepo) mustGet(id domain.InstanceID) domain.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id]
}

type inMemoryAccountDirectory struct {
	accounts []domain.Account
}

func (d *inMemoryAccountDirectory) GetByID(_ context.Context, id domain.AccountID) (domain.Account, error) {
	for _, account := range d.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (d *inMemoryAccountDirectory) List(_ context.Context) ([]domain.Account, error) {
	return append([]domain.Account(nil), d.accounts...), nil
}

type fakeProcessController struct {
	mu sync.Mutex

	running   map[domain.InstanceID]bool
	queryErr  map[domain.InstanceID]error
	startErr  error
	stopErr   error
	switchErr error

	started  []domain.InstanceID
	stopped  []domain.InstanceID
	switched []string
}

func newFakeProcessController() *fakeProcessController {
	return &fakeProcessController{
		running:  map[domain.InstanceID]bool{},
		queryErr: map[domain.InstanceID]error{},
	}
}

func (f *fakeProcessController) Start(_ context.Context, instance domain.Instance, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return f.startErr
	}
	f.running[instance.ID] = true
	f.started = append(f.started, instance.ID)
	return nil
}

func (f *fakeProcessController) Stop(_ context.Context, instance domain.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopErr != nil {
		return f.stopErr
	}
	f.running[instance.ID] = false
	f.stopped = append(f.stopped, instance.ID)
	return nil
}

func (f *fakeProcessController) IsRunning(_ context.Context, instance domain.Instance) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.queryErr[instance.ID]; err != nil {
		return false, err
	}
	return f.running[instance.ID], nil
}

func (f *fakeProcessController) SwitchAccount(_ context.Context, instance domain.Instance, accountID domain.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.switchErr != nil {
		return f.switchErr
	}
	f.switched = append(f.switched, fmt.Sprintf("%s:%s", instance.ID, accountID))
	return nil
}

func (f *fakeProcessController) setRunning(id domain.InstanceID, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = running
}

func (f *fakeProcessController) setQueryErr(id domain.InstanceID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.queryErr, id)
		return
	}
	f.queryErr[id] = err
}
