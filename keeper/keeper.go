// Package keeper implements the automation trigger: a loop that polls
// a target's upkeep eligibility and, when it holds, performs the
// upkeep. Delivery is best-effort; the target re-validates eligibility
// itself, so a keeper losing a race only sees a not-needed error.
package keeper

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/raffled/raffled/log"
	"github.com/raffled/raffled/raffle"
)

// Upkeep is the target the keeper drives. The raffle implements it.
type Upkeep interface {
	// CheckUpkeep reports whether upkeep is currently needed. The
	// payloads are opaque and reserved.
	CheckUpkeep(payload []byte) (bool, []byte)
	// PerformUpkeep performs the upkeep, re-validating internally.
	PerformUpkeep(payload []byte) error
}

// Errors returned by keeper lifecycle methods.
var (
	ErrAlreadyStarted = errors.New("keeper: already started")
	ErrNotStarted     = errors.New("keeper: not started")
)

// Config holds keeper timing parameters.
type Config struct {
	// PollInterval is the time between eligibility checks.
	PollInterval time.Duration
}

// DefaultConfig returns a poll interval suitable for a local service.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second}
}

// Keeper polls a single Upkeep target. Start and Stop are safe to
// call from any goroutine but not concurrently with each other.
type Keeper struct {
	cfg    Config
	target Upkeep
	log    *log.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	performed atomic.Int64
	misses    atomic.Int64
}

// New creates a keeper for the given target. A nil logger uses the
// package default.
func New(cfg Config, target Upkeep, logger *log.Logger) *Keeper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Keeper{
		cfg:    cfg,
		target: target,
		log:    logger.Module("keeper"),
	}
}

// Start launches the polling loop. Implements the node Service
// interface.
func (k *Keeper) Start() error {
	if k.running {
		return ErrAlreadyStarted
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})
	go k.loop(k.stopCh, k.doneCh)
	k.log.Info("keeper started", "poll", k.cfg.PollInterval)
	return nil
}

// Stop terminates the polling loop and waits for it to exit.
func (k *Keeper) Stop() error {
	if !k.running {
		return ErrNotStarted
	}
	close(k.stopCh)
	<-k.doneCh
	k.running = false
	k.log.Info("keeper stopped", "performed", k.performed.Load())
	return nil
}

// Performed returns how many upkeeps this keeper has performed.
func (k *Keeper) Performed() int64 { return k.performed.Load() }

// Misses returns how many times the keeper lost the eligibility race.
func (k *Keeper) Misses() int64 { return k.misses.Load() }

// Name implements the node Service interface.
func (k *Keeper) Name() string { return "keeper" }

func (k *Keeper) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(k.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			k.tick()
		}
	}
}

// tick runs one check/perform cycle.
func (k *Keeper) tick() {
	needed, payload := k.target.CheckUpkeep(nil)
	if !needed {
		return
	}

	err := k.target.PerformUpkeep(payload)
	if err == nil {
		k.performed.Add(1)
		k.log.Debug("upkeep performed")
		return
	}

	// Losing the race to another trigger is expected: the target
	// re-derived eligibility and said no.
	var notNeeded *raffle.UpkeepNotNeededError
	if errors.As(err, &notNeeded) {
		k.misses.Add(1)
		k.log.Debug("upkeep no longer needed", "state", notNeeded.State, "players", notNeeded.NumPlayers)
		return
	}
	k.log.Error("upkeep failed", "err", err)
}
