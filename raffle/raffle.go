// Package raffle implements the raffle state machine: entry admission,
// automation-gated draw initiation, randomness-callback winner
// selection, payout and reset.
//
// The machine cycles OPEN -> CALCULATING -> OPEN. Entries are accepted
// only while OPEN; once a draw is initiated the player set is frozen
// until the randomness callback resolves it. A raffle left waiting on
// its randomness source stays CALCULATING indefinitely; availability
// and retry belong to the source, not the machine.
package raffle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
	"github.com/raffled/raffled/log"
	"github.com/raffled/raffled/metrics"
)

// State is the lifecycle state of the raffle.
type State uint8

const (
	// StateOpen accepts entries and may initiate a draw once eligible.
	StateOpen State = iota
	// StateCalculating rejects entries while a randomness request is
	// in flight.
	StateCalculating
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCalculating:
		return "calculating"
	default:
		return "unknown"
	}
}

// NumWords is the number of random words requested per draw. The
// raffle consumes exactly one.
const NumWords = 1

// Errors returned by raffle operations.
var (
	ErrInsufficientEntryFee = errors.New("raffle: payment below entrance fee")
	ErrRaffleNotOpen        = errors.New("raffle: not open")
	ErrStaleRequest         = errors.New("raffle: stale or unknown randomness request")
	ErrNoRandomWords        = errors.New("raffle: fulfillment carried no random words")
	ErrPlayerIndex          = errors.New("raffle: player index out of range")
)

// UpkeepNotNeededError reports a draw initiation attempted while the
// raffle was not eligible. It carries the full diagnostic context so
// the automation collaborator can decide how to retry.
type UpkeepNotNeededError struct {
	State      State
	NumPlayers int
	Balance    *uint256.Int
	Elapsed    time.Duration
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("raffle: upkeep not needed (state=%s players=%d balance=%s elapsed=%s)",
		e.State, e.NumPlayers, e.Balance, e.Elapsed)
}

// Treasury is the value-transfer primitive the raffle uses to pool
// entry fees and pay out the winner.
type Treasury interface {
	BalanceOf(addr types.Address) *uint256.Int
	Transfer(from, to types.Address, amount *uint256.Int) error
}

// RandomnessSource issues asynchronous randomness requests. The call
// must return immediately with a request identifier; the random words
// arrive later through FulfillRandomWords. Implementations must not
// call back into the raffle from within RequestRandomWords.
type RandomnessSource interface {
	RequestRandomWords(keyHash types.Hash, subID uint64, confirmations uint16, callbackGasLimit uint32, numWords uint32) (types.Hash, error)
}

// Config holds the immutable parameters of a raffle, fixed at creation.
type Config struct {
	// Account is the address holding the pooled entry fees.
	Account types.Address
	// EntranceFee is the minimum payment to enter, in wei.
	EntranceFee *uint256.Int
	// Interval is the minimum time between draws.
	Interval time.Duration

	// Randomness routing parameters, passed through to the source.
	KeyHash              types.Hash
	SubID                uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
}

// DefaultConfig returns a config with development defaults: a 0.01
// ether entrance fee and a 30 second draw interval.
func DefaultConfig() Config {
	fee := new(uint256.Int)
	fee.Exp(uint256.NewInt(10), uint256.NewInt(16)) // 0.01 ether
	return Config{
		Account:              types.BytesToAddress([]byte("raffled/pot")),
		EntranceFee:          fee,
		Interval:             30 * time.Second,
		SubID:                1,
		RequestConfirmations: 3,
		CallbackGasLimit:     500_000,
	}
}

// Validate checks the config for correctness.
func (c Config) Validate() error {
	if c.Account.IsZero() {
		return errors.New("raffle: config: account must not be zero")
	}
	if c.EntranceFee == nil || c.EntranceFee.IsZero() {
		return errors.New("raffle: config: entrance fee must be greater than 0")
	}
	if c.Interval <= 0 {
		return errors.New("raffle: config: interval must be greater than 0")
	}
	if c.CallbackGasLimit == 0 {
		return errors.New("raffle: config: callback gas limit must be greater than 0")
	}
	return nil
}

// Deps are the collaborators a raffle is wired to. Treasury and
// Randomness are required; the rest default when nil.
type Deps struct {
	Treasury   Treasury
	Randomness RandomnessSource
	Feed       *Feed
	Metrics    *metrics.Registry
	Log        *log.Logger
	Now        func() time.Time
}

// Raffle is the state machine. All mutating methods and accessors are
// safe for concurrent use; a single mutex serializes Enter,
// PerformUpkeep and FulfillRandomWords against each other.
type Raffle struct {
	cfg        Config
	treasury   Treasury
	randomness RandomnessSource
	feed       *Feed
	reg        *metrics.Registry
	log        *log.Logger
	now        func() time.Time

	mu               sync.Mutex
	state            State
	players          []types.Address
	lastDrawTime     time.Time
	recentWinner     types.Address
	hasWinner        bool
	pendingRequestID types.Hash
}

// New creates a raffle in the OPEN state with an empty player set and
// the draw timer starting now.
func New(cfg Config, deps Deps) (*Raffle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Treasury == nil {
		return nil, errors.New("raffle: treasury is required")
	}
	if deps.Randomness == nil {
		return nil, errors.New("raffle: randomness source is required")
	}
	if deps.Feed == nil {
		deps.Feed = NewFeed(16)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Log == nil {
		deps.Log = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Raffle{
		cfg:        cfg,
		treasury:   deps.Treasury,
		randomness: deps.Randomness,
		feed:       deps.Feed,
		reg:        deps.Metrics,
		log:        deps.Log.Module("raffle"),
		now:        deps.Now,
		state:      StateOpen,
	}
	r.lastDrawTime = r.now()
	return r, nil
}

// Enter admits a participant. The payment must be at least the
// entrance fee and the raffle must be OPEN; the fee is moved into the
// pot account before the participant is appended, so a failed transfer
// leaves no trace.
func (r *Raffle) Enter(player types.Address, payment *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment == nil || payment.Lt(r.cfg.EntranceFee) {
		return fmt.Errorf("%w: need %s", ErrInsufficientEntryFee, r.cfg.EntranceFee)
	}
	if r.state != StateOpen {
		return ErrRaffleNotOpen
	}
	if err := r.treasury.Transfer(player, r.cfg.Account, payment); err != nil {
		return fmt.Errorf("raffle: entry fee transfer: %w", err)
	}

	r.players = append(r.players, player)
	r.reg.Counter("raffle.entries_total").Inc()
	r.updatePotGaugeLocked()
	r.feed.publish(EventEntryRecorded, EntryRecorded{
		Player:     player,
		Payment:    payment.Clone(),
		NumPlayers: len(r.players),
	})
	r.log.Debug("entry recorded", "player", player, "players", len(r.players))
	return nil
}

// CheckUpkeep reports whether a draw should be initiated. The payload
// is unused and reserved; the returned payload is always nil. The call
// is read-only and safe at any polling frequency.
func (r *Raffle) CheckUpkeep(_ []byte) (bool, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, _ := r.eligibilityLocked(r.now())
	return ok, nil
}

// PerformUpkeep initiates a draw. Eligibility is re-derived internally
// regardless of what the caller observed; an ineligible call fails
// with *UpkeepNotNeededError and changes nothing. On success the
// raffle is CALCULATING and a one-word randomness request is in
// flight. The state guard makes a second concurrent initiation
// impossible.
func (r *Raffle) PerformUpkeep(_ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ok, diag := r.eligibilityLocked(now)
	if !ok {
		return diag
	}

	r.state = StateCalculating
	requestID, err := r.randomness.RequestRandomWords(
		r.cfg.KeyHash, r.cfg.SubID, r.cfg.RequestConfirmations, r.cfg.CallbackGasLimit, NumWords)
	if err != nil {
		r.state = StateOpen
		return fmt.Errorf("raffle: randomness request: %w", err)
	}

	r.pendingRequestID = requestID
	r.reg.Counter("raffle.draws_started_total").Inc()
	r.feed.publish(EventDrawStarted, DrawStarted{RequestID: requestID})
	r.log.Info("draw started", "request", requestID, "players", len(r.players))
	return nil
}

// FulfillRandomWords is the inbound randomness callback. A callback
// whose request id does not match the pending one is dropped with
// ErrStaleRequest and no state change. Winner selection is
// words[0] mod player count; the modulo skew for non-power-of-two
// player counts is the contract's documented behavior and is kept.
//
// The payout, player reset, timestamp stamp and reopen happen
// atomically. If the payout transfer fails the whole resolution
// aborts: the raffle stays CALCULATING with players and pot intact,
// and only a redelivery of the callback can make progress.
func (r *Raffle) FulfillRandomWords(requestID types.Hash, words []*uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateCalculating || requestID != r.pendingRequestID {
		return fmt.Errorf("%w: %s", ErrStaleRequest, requestID)
	}
	if len(words) == 0 || words[0] == nil {
		return ErrNoRandomWords
	}

	// PerformUpkeep required a non-empty player set, and entries are
	// frozen while CALCULATING, so len(r.players) > 0 here.
	n := uint64(len(r.players))
	idx := new(uint256.Int).Mod(words[0], uint256.NewInt(n)).Uint64()
	winner := r.players[idx]

	pot := r.treasury.BalanceOf(r.cfg.Account)
	if err := r.treasury.Transfer(r.cfg.Account, winner, pot); err != nil {
		r.reg.Counter("raffle.payout_failures_total").Inc()
		r.log.Warn("payout failed, staying in calculating", "winner", winner, "err", err)
		return fmt.Errorf("raffle: payout to %s: %w", winner, err)
	}

	r.recentWinner = winner
	r.hasWinner = true
	r.players = nil
	r.lastDrawTime = r.now()
	r.state = StateOpen
	r.pendingRequestID = types.Hash{}

	r.reg.Counter("raffle.draws_resolved_total").Inc()
	r.updatePotGaugeLocked()
	r.feed.publish(EventWinnerResolved, WinnerResolved{Winner: winner, Payout: pot.Clone()})
	r.log.Info("winner resolved", "winner", winner, "payout", pot)
	return nil
}

// eligibilityLocked derives the upkeep condition at t. When the raffle
// is not eligible it returns the diagnostic error describing why.
// Caller holds r.mu.
func (r *Raffle) eligibilityLocked(t time.Time) (bool, *UpkeepNotNeededError) {
	elapsed := t.Sub(r.lastDrawTime)
	balance := r.treasury.BalanceOf(r.cfg.Account)

	eligible := r.state == StateOpen &&
		elapsed >= r.cfg.Interval &&
		len(r.players) > 0 &&
		!balance.IsZero()
	if eligible {
		return true, nil
	}
	return false, &UpkeepNotNeededError{
		State:      r.state,
		NumPlayers: len(r.players),
		Balance:    balance,
		Elapsed:    elapsed,
	}
}

// updatePotGaugeLocked refreshes the pot gauge. Caller holds r.mu.
func (r *Raffle) updatePotGaugeLocked() {
	pot := r.treasury.BalanceOf(r.cfg.Account)
	f, _ := new(big.Float).SetInt(pot.ToBig()).Float64()
	r.reg.Gauge("raffle.pot_wei").Set(f)
}

// Accessors. Read-only views of current stored values.

// EntranceFee returns a copy of the fixed entrance fee.
func (r *Raffle) EntranceFee() *uint256.Int { return r.cfg.EntranceFee.Clone() }

// Interval returns the fixed minimum time between draws.
func (r *Raffle) Interval() time.Duration { return r.cfg.Interval }

// Account returns the address of the pot account.
func (r *Raffle) Account() types.Address { return r.cfg.Account }

// State returns the current lifecycle state.
func (r *Raffle) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// NumPlayers returns the current player count.
func (r *Raffle) NumPlayers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Player returns the participant at index i in entry order.
func (r *Raffle) Player(i int) (types.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.players) {
		return types.Address{}, fmt.Errorf("%w: %d of %d", ErrPlayerIndex, i, len(r.players))
	}
	return r.players[i], nil
}

// RecentWinner returns the last resolved winner. The second return is
// false before the first draw has resolved.
func (r *Raffle) RecentWinner() (types.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recentWinner, r.hasWinner
}

// LastDrawTime returns the creation time or the time of the last
// successful reset.
func (r *Raffle) LastDrawTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDrawTime
}

// PendingRequestID returns the in-flight randomness request id. It is
// the zero Hash unless the raffle is CALCULATING.
func (r *Raffle) PendingRequestID() types.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingRequestID
}

// Pot returns the current pooled balance.
func (r *Raffle) Pot() *uint256.Int {
	return r.treasury.BalanceOf(r.cfg.Account)
}

// Feed returns the raffle's notification feed.
func (r *Raffle) Feed() *Feed { return r.feed }
