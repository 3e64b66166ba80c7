package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultPollConcurrency = 4
)

// StatusPoller refreshes a running/stopped map for all known instances on a
// fixed cadence. Each tick queries instances independently with bounded
// concurrency; a failing instance reads as stopped and never blocks the
// others. The published map is swapped atomically, so readers never observe a
// half-finished tick. Several pollers with different cadences may coexist.
type StatusPoller struct {
	repo        ports.InstanceRepository
	proc        ports.ProcessController
	interval    time.Duration
	concurrency int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stateMu sync.RWMutex
	running map[domain.InstanceID]bool
}

func NewStatusPoller(repo ports.InstanceRepository, proc ports.ProcessController, interval time.Duration, concurrency int) *StatusPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if concurrency <= 0 {
		concurrency = defaultPollConcurrency
	}

	return &StatusPoller{
		repo:        repo,
		proc:        proc,
		interval:    interval,
		concurrency: concurrency,
		running:     map[domain.InstanceID]bool{},
	}
}

// Start launches the polling loop. Calling Start while the poller is active
// is a no-op; the first refresh happens immediately.
func (p *StatusPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	// The channel is handed over here: Stop nils the field, so run must not
	// read it again.
	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Running returns a copy of the last published state.
func (p *StatusPoller) Running() map[domain.InstanceID]bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	snapshot := make(map[domain.InstanceID]bool, len(p.running))
	for id, running := range p.running {
		snapshot[id] = running
	}

	return snapshot
}

func (p *StatusPoller) IsRunning(id domain.InstanceID) bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return p.running[id]
}

func (p *StatusPoller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *StatusPoller) refresh(ctx context.Context) {
	instances, err := p.repo.List(ctx)
	if err != nil {
		slog.Warn("poller: list instances failed, keeping previous state", "error", err)
		return
	}

	results := make([]bool, len(instances))

	g, queryCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, instance := range instances {
		g.Go(func() error {
			running, err := p.proc.IsRunning(queryCtx, instance)
			if err != nil {
				slog.Debug("poller: status query failed, reporting stopped", "instance", instance.ID, "error", err)
				running = false
			}
			results[i] = running
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes the tick.
	_ = g.Wait()

	next := make(map[domain.InstanceID]bool, len(instances))
	for i, instance := range instances {
		next[instance.ID] = results[i]
	}

	p.stateMu.Lock()
	p.running = next
	p.stateMu.Unlock()
}
