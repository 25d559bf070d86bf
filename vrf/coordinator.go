// Package vrf implements the randomness coordinator the raffle draws
// from. A consumer registers under a subscription id, issues a request
// and gets back a request id immediately; the coordinator later signs
// the request seed, derives the random words from the proof and
// delivers them through the consumer's fulfillment callback.
//
// Requests wait a confirmation delay before becoming deliverable,
// mirroring the confirmation-depth parameter of on-chain coordinators.
// A delivery rejected by the consumer is parked until an operator
// calls Retry; the coordinator never drops a request on its own.
package vrf

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
	"github.com/raffled/raffled/crypto"
	"github.com/raffled/raffled/log"
)

// MaxNumWords caps the number of random words per request.
const MaxNumWords = 10

// Errors returned by coordinator operations.
var (
	ErrUnknownSubscription = errors.New("vrf: unknown subscription")
	ErrUnknownRequest      = errors.New("vrf: unknown request")
	ErrZeroWords           = errors.New("vrf: zero words requested")
	ErrTooManyWords        = errors.New("vrf: too many words requested")
	ErrNotStarted          = errors.New("vrf: coordinator not started")
	ErrAlreadyStarted      = errors.New("vrf: coordinator already started")
)

// Consumer receives random words for a request it previously issued.
type Consumer interface {
	FulfillRandomWords(requestID types.Hash, words []*uint256.Int) error
}

// Config holds coordinator timing parameters.
type Config struct {
	// BlockTime is the simulated confirmation depth: a request becomes
	// deliverable confirmations*BlockTime after issuance.
	BlockTime time.Duration
	// PollInterval is how often the delivery loop scans for
	// deliverable requests.
	PollInterval time.Duration
}

// DefaultConfig returns timing defaults suitable for a local service.
func DefaultConfig() Config {
	return Config{
		BlockTime:    time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

// request is one in-flight randomness request.
type request struct {
	id       types.Hash
	subID    uint64
	numWords uint32
	consumer Consumer
	seed     types.Hash
	readyAt  time.Time
	failed   bool // last delivery rejected; waiting for Retry
}

// Coordinator issues request ids and delivers random words. All
// methods are safe for concurrent use.
type Coordinator struct {
	cfg    Config
	signer Signer
	log    *log.Logger

	mu        sync.Mutex
	entropy   [32]byte
	nonce     uint64
	consumers map[uint64]Consumer
	pending   map[types.Hash]*request
	issued    int
	delivered int

	runMu   sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a coordinator. A nil signer gets a freshly keyed dev
// signer; a nil logger uses the package default.
func New(cfg Config, signer Signer, logger *log.Logger) *Coordinator {
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultConfig().BlockTime
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &Coordinator{
		cfg:       cfg,
		signer:    signer,
		log:       logger.Module("vrf"),
		consumers: make(map[uint64]Consumer),
		pending:   make(map[types.Hash]*request),
	}
	rand.Read(c.entropy[:])
	if c.signer == nil {
		c.signer = NewRandomDevSigner()
	}
	return c
}

// RegisterConsumer routes requests issued under subID to consumer.
func (c *Coordinator) RegisterConsumer(subID uint64, consumer Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumers[subID] = consumer
}

// RequestRandomWords issues a randomness request and returns its id.
// The id is keccak(keyHash, subID, nonce) over a coordinator-local
// nonce, so every issuance is distinct. The call never blocks on word
// generation; delivery happens later.
func (c *Coordinator) RequestRandomWords(keyHash types.Hash, subID uint64, confirmations uint16, callbackGasLimit uint32, numWords uint32) (types.Hash, error) {
	if numWords == 0 {
		return types.Hash{}, ErrZeroWords
	}
	if numWords > MaxNumWords {
		return types.Hash{}, fmt.Errorf("%w: %d > %d", ErrTooManyWords, numWords, MaxNumWords)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	consumer, ok := c.consumers[subID]
	if !ok {
		return types.Hash{}, fmt.Errorf("%w: %d", ErrUnknownSubscription, subID)
	}

	c.nonce++
	id := crypto.Keccak256Hash(keyHash.Bytes(), crypto.Uint64Bytes(subID), crypto.Uint64Bytes(c.nonce))
	req := &request{
		id:       id,
		subID:    subID,
		numWords: numWords,
		consumer: consumer,
		seed:     crypto.Keccak256Hash(c.entropy[:], id.Bytes()),
		readyAt:  time.Now().Add(time.Duration(confirmations) * c.cfg.BlockTime),
	}
	c.pending[id] = req
	c.issued++

	c.log.Debug("randomness requested", "request", id, "sub", subID, "words", numWords)
	return id, nil
}

// FulfillPending signs the request seed, derives the random words and
// delivers them to the consumer. On consumer rejection the request is
// parked (skipped by the delivery loop) until Retry; on success it is
// removed from the correlation table.
func (c *Coordinator) FulfillPending(id types.Hash) error {
	c.mu.Lock()
	req, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	proof, err := c.signer.Sign(req.seed.Bytes())
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("vrf: proof for %s: %w", id, err)
	}
	words := wordsFromProof(proof, req.numWords)
	consumer := req.consumer
	c.mu.Unlock()

	// Deliver outside the lock: the consumer holds its own mutex and
	// may issue new requests from other goroutines.
	if err := consumer.FulfillRandomWords(id, words); err != nil {
		c.mu.Lock()
		if r, ok := c.pending[id]; ok {
			r.failed = true
		}
		c.mu.Unlock()
		return fmt.Errorf("vrf: delivery of %s: %w", id, err)
	}

	c.mu.Lock()
	delete(c.pending, id)
	c.delivered++
	c.mu.Unlock()

	c.log.Debug("randomness delivered", "request", id)
	return nil
}

// Retry redelivers a parked or still-pending request. This is the
// operator path after a consumer-side failure such as a refused payout.
func (c *Coordinator) Retry(id types.Hash) error {
	c.mu.Lock()
	if req, ok := c.pending[id]; ok {
		req.failed = false
	}
	c.mu.Unlock()
	return c.FulfillPending(id)
}

// wordsFromProof expands the proof into n 256-bit words by hashing the
// proof with a word counter.
func wordsFromProof(proof []byte, n uint32) []*uint256.Int {
	words := make([]*uint256.Int, n)
	for i := uint32(0); i < n; i++ {
		h := crypto.Keccak256(proof, crypto.Uint64Bytes(uint64(i)))
		words[i] = new(uint256.Int).SetBytes(h)
	}
	return words
}

// Start launches the delivery loop. Implements the node Service
// interface.
func (c *Coordinator) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return ErrAlreadyStarted
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)
	c.log.Info("coordinator started", "blockTime", c.cfg.BlockTime, "poll", c.cfg.PollInterval)
	return nil
}

// Stop terminates the delivery loop and waits for it to exit.
func (c *Coordinator) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return ErrNotStarted
	}
	close(c.stopCh)
	<-c.doneCh
	c.running = false
	c.log.Info("coordinator stopped")
	return nil
}

// Name implements the node Service interface.
func (c *Coordinator) Name() string { return "vrf" }

func (c *Coordinator) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			for _, id := range c.deliverable(now) {
				if err := c.FulfillPending(id); err != nil {
					c.log.Warn("delivery failed, parked for retry", "request", id, "err", err)
				}
			}
		}
	}
}

// deliverable returns the ids of requests whose confirmation delay has
// elapsed, excluding parked ones.
func (c *Coordinator) deliverable(now time.Time) []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []types.Hash
	for id, req := range c.pending {
		if !req.failed && !now.Before(req.readyAt) {
			due = append(due, id)
		}
	}
	return due
}

// PendingCount returns the number of requests awaiting delivery.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// HasPending reports whether id is in the correlation table.
func (c *Coordinator) HasPending(id types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Stats returns the total requests issued and delivered.
func (c *Coordinator) Stats() (issued, delivered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued, c.delivered
}
