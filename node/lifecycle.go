package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/raffled/raffled/log"
)

// Service is a subsystem that can be started and stopped by the
// lifecycle manager.
type Service interface {
	Start() error
	Stop() error
	Name() string
}

// serviceEntry tracks a registered service and its start priority.
type serviceEntry struct {
	svc      Service
	priority int // lower starts first
	running  bool
}

// Lifecycle starts registered services in priority order and stops
// them in reverse. A failed start stops everything already running.
type Lifecycle struct {
	mu      sync.Mutex
	entries []*serviceEntry
	byName  map[string]*serviceEntry
	log     *log.Logger
}

// NewLifecycle creates an empty lifecycle manager.
func NewLifecycle(logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.Default()
	}
	return &Lifecycle{
		byName: make(map[string]*serviceEntry),
		log:    logger.Module("lifecycle"),
	}
}

// Register adds a service. Priority determines start order: lower
// values start first. Duplicate names are rejected.
func (l *Lifecycle) Register(svc Service, priority int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byName[svc.Name()]; exists {
		return fmt.Errorf("lifecycle: service %q already registered", svc.Name())
	}
	entry := &serviceEntry{svc: svc, priority: priority}
	l.entries = append(l.entries, entry)
	l.byName[svc.Name()] = entry
	return nil
}

// StartAll starts all services in ascending priority order. On the
// first failure it stops, in reverse order, everything it started and
// returns the failure.
func (l *Lifecycle) StartAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ordered := l.ordered()
	for i, entry := range ordered {
		l.log.Info("starting service", "service", entry.svc.Name())
		if err := entry.svc.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := ordered[j].svc.Stop(); stopErr != nil {
					l.log.Error("rollback stop failed", "service", ordered[j].svc.Name(), "err", stopErr)
				}
				ordered[j].running = false
			}
			return fmt.Errorf("lifecycle: start %s: %w", entry.svc.Name(), err)
		}
		entry.running = true
	}
	return nil
}

// StopAll stops all running services in descending priority order,
// collecting errors rather than aborting.
func (l *Lifecycle) StopAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ordered := l.ordered()
	var errs []error
	for i := len(ordered) - 1; i >= 0; i-- {
		entry := ordered[i]
		if !entry.running {
			continue
		}
		l.log.Info("stopping service", "service", entry.svc.Name())
		if err := entry.svc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", entry.svc.Name(), err))
		}
		entry.running = false
	}
	return errors.Join(errs...)
}

// Running reports whether the named service is currently running.
func (l *Lifecycle) Running(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.byName[name]
	return ok && entry.running
}

// ordered returns entries sorted by ascending priority, stable on
// registration order. Caller holds l.mu.
func (l *Lifecycle) ordered() []*serviceEntry {
	out := make([]*serviceEntry, len(l.entries))
	copy(out, l.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority < out[j].priority
	})
	return out
}
