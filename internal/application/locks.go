package application

import (
	"sync"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

// InstanceLocks serializes mutations per instance id. Operations on different
// instances proceed in parallel; the registry-wide lock is only taken by
// create and ensure-default, which must scan the whole set.
type InstanceLocks struct {
	mu    sync.Mutex
	locks map[domain.InstanceID]*sync.Mutex
}

func NewInstanceLocks() *InstanceLocks {
	return &InstanceLocks{locks: map[domain.InstanceID]*sync.Mutex{}}
}

func (l *InstanceLocks) ForInstance(id domain.InstanceID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mu, ok := l.locks[id]; ok {
		return mu
	}

	mu := &sync.Mutex{}
	l.locks[id] = mu
	return mu
}
