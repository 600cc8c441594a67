// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	lsctx "github.com/eclipse-che/che-jsonrpc/internal/context"
	"github.com/eclipse-che/che-jsonrpc/internal/dispatch"
	"github.com/eclipse-che/che-jsonrpc/internal/logging"
	"github.com/eclipse-che/che-jsonrpc/internal/node"
	"github.com/eclipse-che/che-jsonrpc/internal/settings"
	"github.com/eclipse-che/che-jsonrpc/internal/telemetry"
	"github.com/mitchellh/cli"
)

type ServeCommand struct {
	Ui      cli.Ui
	Version string

	// flags
	configPath     string
	address        string
	framing        string
	logFilePath    string
	requestTimeout string
	cpuProfile     string
	memProfile     string
	reqConcurrency int
	peers          stringsFlag
}

func (c *ServeCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("serve")

	fs.StringVar(&c.configPath, "config", "", "path to a TOML file with options, flags take precedence")
	fs.StringVar(&c.address, "address", "", "address to listen on (e.g. localhost:4389),"+
		" turns server into TCP mode, serves stdio otherwise")
	fs.StringVar(&c.framing, "framing", "", fmt.Sprintf("framing of messages, %q or %q (default %q)",
		settings.FramingLine, settings.FramingLSP, settings.FramingLSP))
	fs.StringVar(&c.logFilePath, "log-file", "", "path to a file to log into with support "+
		"for variables (e.g. timestamp, pid, ppid) via Go template syntax {{ .VarName }}")
	fs.StringVar(&c.requestTimeout, "request-timeout", "", fmt.Sprintf("default timeout of outbound"+
		" requests (e.g. 10s), 0 waits forever (default %s)", settings.DefaultRequestTimeout))
	fs.StringVar(&c.cpuProfile, "cpuprofile", "", "file into which to write CPU profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid) via Go template"+
		" syntax {{ .VarName }}")
	fs.StringVar(&c.memProfile, "memprofile", "", "file into which to write memory profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid) via Go template"+
		" syntax {{ .VarName }}")
	fs.IntVar(&c.reqConcurrency, "req-concurrency", 0, fmt.Sprintf("number of calls to handle concurrently,"+
		" defaults to %d", dispatch.DefaultConcurrency()))
	fs.Var(&c.peers, "peer", "address of a node to connect to on start, may be repeated")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

// options merges the config file (if any) with flags
func (c *ServeCommand) options(logger *log.Logger) (*settings.Options, error) {
	opts := settings.DefaultOptions()
	if c.configPath != "" {
		decoded, err := settings.LoadFile(c.configPath)
		if err != nil {
			return nil, err
		}
		if len(decoded.UnusedKeys) > 0 {
			logger.Printf("[WARN] unknown options in %q: %q", c.configPath, decoded.UnusedKeys)
		}
		opts = decoded.Options
	}

	if c.address != "" {
		opts.Address = c.address
	}
	if c.framing != "" {
		opts.Framing = c.framing
	}
	if c.logFilePath != "" {
		opts.LogFilePath = c.logFilePath
	}
	if c.requestTimeout != "" {
		d, err := time.ParseDuration(c.requestTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse request timeout: %w", err)
		}
		opts.RequestTimeout = d
	}
	if c.reqConcurrency != 0 {
		opts.RequestConcurrency = c.reqConcurrency
	}
	if len(c.peers) > 0 {
		opts.Peers = append(opts.Peers, c.peers...)
	}

	return opts, opts.Validate()
}

func (c *ServeCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	if c.cpuProfile != "" {
		stop, err := writeCpuProfileInto(c.cpuProfile)
		if stop != nil {
			defer stop()
		}
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
	}

	if c.memProfile != "" {
		defer writeMemoryProfileInto(c.memProfile)
	}

	opts, err := c.options(logging.NewLogger(os.Stderr))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid options: %s", err))
		return 1
	}

	var logger *log.Logger
	if opts.LogFilePath != "" {
		fl, err := logging.NewFileLogger(opts.LogFilePath)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to setup file logging: %s", err))
			return 1
		}
		defer fl.Close()

		logger = fl.Logger()
	} else {
		logger = logging.NewLogger(os.Stderr)
	}

	ctx, cancelFunc := lsctx.WithSignalCancel(context.Background(), logger,
		syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()

	if apiKey := os.Getenv(telemetry.APIKeyEnvVar); apiKey != "" {
		shutdown, err := telemetry.InitHoneycomb(apiKey, telemetry.NodeAttributes(c.Version))
		if err != nil {
			logger.Printf("[WARN] failed to set up span export: %s", err)
		} else {
			defer shutdown(context.Background())
			logger.Println("Exporting spans to Honeycomb")
		}
	}

	if opts.RequestConcurrency != 0 {
		logger.Printf("Custom request concurrency set to %d", opts.RequestConcurrency)
	}

	logger.Printf("Starting che-jsonrpc %s", c.Version)

	ctx = lsctx.WithServerVersion(ctx, c.Version)

	n, err := node.New(ctx, opts)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to set up node: %s", err))
		return 1
	}
	n.SetLogger(logger)
	defer func() {
		err := n.Stop()
		if err != nil {
			logger.Printf("Failed to stop node cleanly: %s", err)
		}
	}()

	if len(opts.Peers) > 0 {
		ids, err := n.ConnectPeers()
		if err != nil {
			logger.Printf("[WARN] %s", err)
		}
		logger.Printf("Connected to %d of %d peers", len(ids), len(opts.Peers))
	}

	if opts.Address != "" {
		err := n.ListenAndServe(opts.Address)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to start TCP server: %s", err))
			return 1
		}
		return 0
	}

	err = n.ServeStream(os.Stdin, os.Stdout)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start server: %s", err))
		return 1
	}

	return 0
}

type stopFunc func() error

func writeCpuProfileInto(rawPath string) (stopFunc, error) {
	path, err := logging.ParsePath("cpuprofile-path", rawPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %s", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		return f.Close, fmt.Errorf("could not start CPU profile: %s", err)
	}

	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

func writeMemoryProfileInto(rawPath string) error {
	path, err := logging.ParsePath("memprofile-path", rawPath)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %s", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %s", err)
	}

	return nil
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: che-jsonrpc serve [options]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Starts a JSON-RPC node serving stdio or TCP endpoints"
}
