// Package ledger implements the native value-transfer primitive the
// raffle uses to pool entry fees and pay out winners. Balances are
// 256-bit unsigned integers held per account.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
)

// Errors returned by ledger operations.
var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrZeroAmount        = errors.New("ledger: zero amount")
	ErrTransferRejected  = errors.New("ledger: transfer rejected by recipient")
)

// Receiver is an optional hook attached to an account. If registered,
// it is consulted before funds are credited; returning an error rejects
// the transfer and rolls it back. This models a payee that refuses a
// payment.
type Receiver interface {
	Receive(from types.Address, amount *uint256.Int) error
}

// Ledger is an in-memory account ledger. All methods are safe for
// concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[types.Address]*uint256.Int
	receivers map[types.Address]Receiver
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:  make(map[types.Address]*uint256.Int),
		receivers: make(map[types.Address]Receiver),
	}
}

// Deposit credits amount to addr, creating the account if needed.
// Deposits bypass Receiver hooks; they represent external funding.
func (l *Ledger) Deposit(addr types.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// BalanceOf returns a copy of the balance of addr. Unknown accounts
// have a zero balance.
func (l *Ledger) BalanceOf(addr types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Transfer moves amount from one account to another. The debit and
// credit happen atomically: if the sender lacks funds or the
// recipient's Receiver hook rejects the payment, no balance changes.
func (l *Ledger) Transfer(from, to types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[from]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: account %s has %s, needs %s",
			ErrInsufficientFunds, from, l.balanceLocked(from), amount)
	}
	if r, ok := l.receivers[to]; ok {
		if err := r.Receive(from, amount.Clone()); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}
	bal.Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

// SetReceiver attaches a Receiver hook to addr. Passing nil removes
// any existing hook.
func (l *Ledger) SetReceiver(addr types.Address, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r == nil {
		delete(l.receivers, addr)
		return
	}
	l.receivers[addr] = r
}

// credit adds amount to addr. Caller holds l.mu.
func (l *Ledger) credit(addr types.Address, amount *uint256.Int) {
	if b, ok := l.balances[addr]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[addr] = amount.Clone()
}

// balanceLocked returns the balance of addr without copying. Caller
// holds l.mu.
func (l *Ledger) balanceLocked(addr types.Address) *uint256.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}
