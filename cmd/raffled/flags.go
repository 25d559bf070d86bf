package main

import (
	"flag"
	"io"

	"github.com/raffled/raffled/node"
)

// flagValues holds the raw CLI flag values before they are merged into
// the node configuration. Only flags the user actually set are applied,
// so an untouched flag never clobbers a file or environment setting.
type flagValues struct {
	configPath  string
	showVersion bool

	fee      string
	interval uint64

	rpcEnabled bool
	rpcHost    string
	rpcPort    int

	logLevel  string
	logFormat string
}

// newFlagSet creates the raffled flag set with ContinueOnError behavior
// and the flag storage it binds to.
func newFlagSet() (*flag.FlagSet, *flagValues) {
	fv := &flagValues{}
	fs := flag.NewFlagSet("raffled", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	fs.StringVar(&fv.configPath, "config", "", "path to YAML config file")
	fs.BoolVar(&fv.showVersion, "version", false, "print version and exit")
	fs.StringVar(&fv.fee, "fee", "", "entrance fee in wei, decimal or 0x-hex")
	fs.Uint64Var(&fv.interval, "interval", 0, "seconds between draws")
	fs.BoolVar(&fv.rpcEnabled, "rpc", true, "enable the JSON-RPC server")
	fs.StringVar(&fv.rpcHost, "rpc.host", "", "JSON-RPC listen host")
	fs.IntVar(&fv.rpcPort, "rpc.port", 0, "JSON-RPC listen port")
	fs.StringVar(&fv.logLevel, "log.level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&fv.logFormat, "log.format", "", "log format (text, json)")

	return fs, fv
}

// apply copies the flags the user explicitly set into cfg.
func (fv *flagValues) apply(fs *flag.FlagSet, cfg *node.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fee":
			cfg.Raffle.EntranceFee = fv.fee
		case "interval":
			cfg.Raffle.IntervalSeconds = fv.interval
		case "rpc":
			cfg.RPC.Enabled = fv.rpcEnabled
		case "rpc.host":
			cfg.RPC.Host = fv.rpcHost
		case "rpc.port":
			cfg.RPC.Port = fv.rpcPort
		case "log.level":
			cfg.Log.Level = fv.logLevel
		case "log.format":
			cfg.Log.Format = fv.logFormat
		}
	})
}

// silenceOutput redirects flag error output, used by tests.
func silenceOutput(fs *flag.FlagSet) {
	fs.SetOutput(io.Discard)
}
