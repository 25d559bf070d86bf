// Command raffled runs a raffle service: an open entry pool, a timed
// automated draw backed by a verifiable randomness coordinator, and a
// JSON-RPC interface.
//
// Usage:
//
//	raffled [flags]
//
// Flags:
//
//	--config       Path to a YAML config file
//	--fee          Entrance fee in wei, decimal or 0x-hex
//	--interval     Seconds between draws
//	--rpc.host     JSON-RPC listen host
//	--rpc.port     JSON-RPC listen port
//	--rpc          Enable the JSON-RPC server
//	--log.level    Log level: debug, info, warn, error
//	--log.format   Log format: text, json
//	--version      Print version and exit
//
// Configuration precedence, lowest to highest: built-in defaults, the
// YAML file, RAFFLED_* environment variables, CLI flags.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raffled/raffled/log"
	"github.com/raffled/raffled/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := log.New(log.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	log.SetDefault(logger)

	logger.Info("raffled starting", "version", version, "commit", commit)
	logger.Info("configuration",
		"fee", cfg.Raffle.EntranceFee,
		"interval_s", cfg.Raffle.IntervalSeconds,
		"sub_id", cfg.Raffle.SubID,
		"rpc", cfg.RPC.Enabled,
		"rpc_addr", cfg.RPCAddr(),
		"log_level", cfg.Log.Level)

	n, err := node.New(cfg)
	if err != nil {
		logger.Error("failed to create node", "err", err)
		return 1
	}

	if err := n.Start(); err != nil {
		logger.Error("failed to start node", "err", err)
		return 1
	}

	// Wait for SIGINT or SIGTERM to initiate graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		logger.Error("error during shutdown", "err", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// parseFlags resolves the effective configuration. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (*node.Config, bool, int) {
	fs, fv := newFlagSet()

	if err := fs.Parse(args); err != nil {
		return nil, true, 2
	}

	if fv.showVersion {
		fmt.Printf("raffled %s (commit %s)\n", version, commit)
		return nil, true, 0
	}

	cfg, err := node.LoadConfig(fv.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, true, 2
	}

	// Explicitly set flags win over file and environment.
	fv.apply(fs, cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, true, 2
	}

	return cfg, false, 0
}
