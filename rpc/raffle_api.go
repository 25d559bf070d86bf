package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
	"github.com/raffled/raffled/raffle"
)

// enterParams is the single object parameter of raffle_enter.
type enterParams struct {
	From  string       `json:"from"`
	Value *hexutil.Big `json:"value"`
}

// RegisterRaffleAPI installs the raffle_* method table on the server.
func RegisterRaffleAPI(s *Server, r *raffle.Raffle) {
	s.Register("raffle_enter", func(params json.RawMessage) (interface{}, *Error) {
		var args []enterParams
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, &Error{Code: CodeInvalidParams, Message: "expected one {from, value} object"}
		}
		from, err := decodeAddress(args[0].From)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		if args[0].Value == nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "missing value"}
		}
		payment, overflow := uint256.FromBig(args[0].Value.ToInt())
		if overflow {
			return nil, &Error{Code: CodeInvalidParams, Message: "value overflows 256 bits"}
		}
		if err := r.Enter(from, payment); err != nil {
			return nil, &Error{Code: CodeServerError, Message: err.Error()}
		}
		return true, nil
	})

	s.Register("raffle_entranceFee", func(json.RawMessage) (interface{}, *Error) {
		return (*hexutil.Big)(r.EntranceFee().ToBig()), nil
	})

	s.Register("raffle_interval", func(json.RawMessage) (interface{}, *Error) {
		return hexutil.Uint64(r.Interval() / time.Second), nil
	})

	s.Register("raffle_state", func(json.RawMessage) (interface{}, *Error) {
		return r.State().String(), nil
	})

	s.Register("raffle_numPlayers", func(json.RawMessage) (interface{}, *Error) {
		return hexutil.Uint64(r.NumPlayers()), nil
	})

	s.Register("raffle_player", func(params json.RawMessage) (interface{}, *Error) {
		var args []hexutil.Uint64
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, &Error{Code: CodeInvalidParams, Message: "expected one index"}
		}
		player, err := r.Player(int(args[0]))
		if err != nil {
			return nil, &Error{Code: CodeServerError, Message: err.Error()}
		}
		return player.Hex(), nil
	})

	s.Register("raffle_recentWinner", func(json.RawMessage) (interface{}, *Error) {
		winner, ok := r.RecentWinner()
		if !ok {
			return nil, nil
		}
		return winner.Hex(), nil
	})

	s.Register("raffle_lastDrawTime", func(json.RawMessage) (interface{}, *Error) {
		return hexutil.Uint64(r.LastDrawTime().Unix()), nil
	})

	s.Register("raffle_pot", func(json.RawMessage) (interface{}, *Error) {
		return (*hexutil.Big)(r.Pot().ToBig()), nil
	})
}

// decodeAddress parses a 20-byte hex address.
func decodeAddress(s string) (types.Address, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid address %q: %v", s, err)
	}
	if len(b) != types.AddressLength {
		return types.Address{}, fmt.Errorf("invalid address length %d, want %d", len(b), types.AddressLength)
	}
	return types.BytesToAddress(b), nil
}
