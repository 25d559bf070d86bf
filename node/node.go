// Package node assembles a raffled service: ledger, randomness
// coordinator, raffle state machine, automation keeper and JSON-RPC
// server, managed by a small lifecycle.
package node

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/ledger"
	"github.com/raffled/raffled/core/types"
	"github.com/raffled/raffled/keeper"
	"github.com/raffled/raffled/log"
	"github.com/raffled/raffled/metrics"
	"github.com/raffled/raffled/raffle"
	"github.com/raffled/raffled/rpc"
	"github.com/raffled/raffled/vrf"
)

// Node is the top-level raffled service.
type Node struct {
	cfg *Config
	log *log.Logger
	reg *metrics.Registry

	ledger      *ledger.Ledger
	coordinator *vrf.Coordinator
	raffle      *raffle.Raffle
	keeper      *keeper.Keeper
	rpcSvc      *rpcService

	lifecycle *Lifecycle
}

// New creates a node from the given configuration. It wires all
// subsystems but starts nothing.
func New(cfg *Config) (*Node, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	reg := metrics.NewRegistry()

	fee, err := parseWei(cfg.Raffle.EntranceFee)
	if err != nil {
		return nil, fmt.Errorf("config: entrance_fee: %w", err)
	}
	account, err := parseAddress(cfg.Raffle.Account)
	if err != nil {
		return nil, fmt.Errorf("config: account: %w", err)
	}

	n := &Node{
		cfg:       cfg,
		log:       logger,
		reg:       reg,
		ledger:    ledger.New(),
		lifecycle: NewLifecycle(logger),
	}

	n.coordinator = vrf.New(vrf.Config{
		BlockTime:    time.Duration(cfg.VRF.BlockTimeMillis) * time.Millisecond,
		PollInterval: time.Duration(cfg.VRF.PollIntervalMillis) * time.Millisecond,
	}, nil, logger)

	raffleCfg := raffle.Config{
		Account:              account,
		EntranceFee:          fee,
		Interval:             time.Duration(cfg.Raffle.IntervalSeconds) * time.Second,
		KeyHash:              types.HexToHash(cfg.Raffle.KeyHash),
		SubID:                cfg.Raffle.SubID,
		RequestConfirmations: cfg.Raffle.Confirmations,
		CallbackGasLimit:     cfg.Raffle.CallbackGasLimit,
	}
	n.raffle, err = raffle.New(raffleCfg, raffle.Deps{
		Treasury:   n.ledger,
		Randomness: n.coordinator,
		Feed:       raffle.NewFeed(32),
		Metrics:    reg,
		Log:        logger,
	})
	if err != nil {
		return nil, err
	}
	n.coordinator.RegisterConsumer(cfg.Raffle.SubID, n.raffle)

	n.keeper = keeper.New(keeper.Config{
		PollInterval: time.Duration(cfg.Keeper.PollIntervalMillis) * time.Millisecond,
	}, n.raffle, logger)

	if err := n.lifecycle.Register(n.coordinator, 10); err != nil {
		return nil, err
	}
	if err := n.lifecycle.Register(n.keeper, 20); err != nil {
		return nil, err
	}

	if cfg.RPC.Enabled {
		server := rpc.NewServer(rpc.DefaultConfig(), logger)
		rpc.RegisterRaffleAPI(server, n.raffle)
		n.rpcSvc = &rpcService{addr: cfg.RPCAddr(), handler: server, log: logger.Module("rpc")}
		if err := n.lifecycle.Register(n.rpcSvc, 30); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// Start starts all subsystems in priority order.
func (n *Node) Start() error {
	n.log.Info("starting subsystems",
		"fee", n.raffle.EntranceFee(), "interval", n.raffle.Interval(), "rpc", n.cfg.RPC.Enabled)
	return n.lifecycle.StartAll()
}

// Stop stops all subsystems in reverse order.
func (n *Node) Stop() error {
	return n.lifecycle.StopAll()
}

// Raffle returns the raffle state machine.
func (n *Node) Raffle() *raffle.Raffle { return n.raffle }

// Ledger returns the node's account ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Coordinator returns the randomness coordinator.
func (n *Node) Coordinator() *vrf.Coordinator { return n.coordinator }

// Metrics returns the node's metric registry.
func (n *Node) Metrics() *metrics.Registry { return n.reg }

// RPCAddr returns the bound RPC address, or "" when RPC is disabled or
// not yet started. With a configured port of 0 this is the actual
// ephemeral address.
func (n *Node) RPCAddr() string {
	if n.rpcSvc == nil {
		return ""
	}
	return n.rpcSvc.boundAddr()
}

// rpcService adapts an http.Server to the Service interface.
type rpcService struct {
	addr    string
	handler http.Handler
	log     *log.Logger

	ln  net.Listener
	srv *http.Server
}

func (s *rpcService) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.handler}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("rpc server exited", "err", err)
		}
	}()
	s.log.Info("rpc listening", "addr", ln.Addr().String())
	return nil
}

func (s *rpcService) Stop() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

func (s *rpcService) Name() string { return "rpc" }

func (s *rpcService) boundAddr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// parseWei parses a wei amount, decimal or 0x-hex.
func parseWei(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return v, nil
}

// parseAddress parses a strict 20-byte 0x-hex address.
func parseAddress(s string) (types.Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != types.AddressLength {
		return types.Address{}, fmt.Errorf("invalid address length %d, want %d", len(b), types.AddressLength)
	}
	return types.BytesToAddress(b), nil
}
