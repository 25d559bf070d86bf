package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
)

var (
	addrA = types.BytesToAddress([]byte{0xAA})
	addrB = types.BytesToAddress([]byte{0xBB})
)

func TestDepositAndBalance(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(100))
	l.Deposit(addrA, uint256.NewInt(50))

	if got := l.BalanceOf(addrA); got.Uint64() != 150 {
		t.Errorf("balance = %s, want 150", got)
	}
	if got := l.BalanceOf(addrB); !got.IsZero() {
		t.Errorf("unknown account balance = %s, want 0", got)
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(10))
	b := l.BalanceOf(addrA)
	b.SetUint64(999)
	if got := l.BalanceOf(addrA); got.Uint64() != 10 {
		t.Errorf("mutating returned balance changed ledger: %s", got)
	}
}

func TestTransfer(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(100))

	if err := l.Transfer(addrA, addrB, uint256.NewInt(60)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := l.BalanceOf(addrA); got.Uint64() != 40 {
		t.Errorf("sender balance = %s, want 40", got)
	}
	if got := l.BalanceOf(addrB); got.Uint64() != 60 {
		t.Errorf("recipient balance = %s, want 60", got)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(10))

	err := l.Transfer(addrA, addrB, uint256.NewInt(11))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.BalanceOf(addrA); got.Uint64() != 10 {
		t.Errorf("failed transfer changed sender balance: %s", got)
	}
	if got := l.BalanceOf(addrB); !got.IsZero() {
		t.Errorf("failed transfer credited recipient: %s", got)
	}
}

func TestTransferZeroAmount(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(10))
	if err := l.Transfer(addrA, addrB, uint256.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("err = %v, want ErrZeroAmount", err)
	}
	if err := l.Transfer(addrA, addrB, nil); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("nil amount err = %v, want ErrZeroAmount", err)
	}
}

// rejectingReceiver refuses every payment.
type rejectingReceiver struct{ calls int }

func (r *rejectingReceiver) Receive(from types.Address, amount *uint256.Int) error {
	r.calls++
	return errors.New("no thanks")
}

func TestTransferRejectedByReceiver(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(100))
	rec := &rejectingReceiver{}
	l.SetReceiver(addrB, rec)

	err := l.Transfer(addrA, addrB, uint256.NewInt(100))
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("err = %v, want ErrTransferRejected", err)
	}
	if rec.calls != 1 {
		t.Errorf("receiver called %d times, want 1", rec.calls)
	}
	if got := l.BalanceOf(addrA); got.Uint64() != 100 {
		t.Errorf("rejected transfer debited sender: %s", got)
	}

	// Removing the hook lets the transfer through.
	l.SetReceiver(addrB, nil)
	if err := l.Transfer(addrA, addrB, uint256.NewInt(100)); err != nil {
		t.Fatalf("Transfer after hook removal: %v", err)
	}
	if got := l.BalanceOf(addrB); got.Uint64() != 100 {
		t.Errorf("recipient balance = %s, want 100", got)
	}
}

func TestConcurrentTransfers(t *testing.T) {
	l := New()
	l.Deposit(addrA, uint256.NewInt(1000))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Transfer(addrA, addrB, uint256.NewInt(1))
			}
		}()
	}
	wg.Wait()

	if got := l.BalanceOf(addrB); got.Uint64() != 100 {
		t.Errorf("recipient balance = %s, want 100", got)
	}
	if got := l.BalanceOf(addrA); got.Uint64() != 900 {
		t.Errorf("sender balance = %s, want 900", got)
	}
}
