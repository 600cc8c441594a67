// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	lsctx "github.com/eclipse-che/che-jsonrpc/internal/context"
	"github.com/eclipse-che/che-jsonrpc/internal/logging"
	"github.com/eclipse-che/che-jsonrpc/internal/node"
	"github.com/eclipse-che/che-jsonrpc/internal/settings"
	"github.com/eclipse-che/che-jsonrpc/internal/transmission"
	"github.com/mitchellh/cli"
)

type CallCommand struct {
	Ui      cli.Ui
	Version string

	// flags
	address string
	framing string
	timeout time.Duration
	notify  bool
	verbose bool
}

func (c *CallCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("call")

	fs.StringVar(&c.address, "address", "localhost:4389", "address of the node to call")
	fs.StringVar(&c.framing, "framing", settings.FramingLSP, fmt.Sprintf("framing of messages, %q or %q",
		settings.FramingLine, settings.FramingLSP))
	fs.DurationVar(&c.timeout, "timeout", settings.DefaultRequestTimeout, "how long to wait for the result")
	fs.BoolVar(&c.notify, "notify", false, "send a notification and do not wait for any result")
	fs.BoolVar(&c.verbose, "verbose", false, "log exchanged messages to stderr")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *CallCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	if f.NArg() < 1 || f.NArg() > 2 {
		c.Ui.Error(fmt.Sprintf("Expected method and optional params, given %q", f.Args()))
		return 1
	}
	method := f.Arg(0)

	var params json.RawMessage
	if f.NArg() == 2 {
		params = json.RawMessage(f.Arg(1))
		if !json.Valid(params) {
			c.Ui.Error(fmt.Sprintf("Params must be valid JSON, given %q", f.Arg(1)))
			return 1
		}
	}

	logger := logging.NewLogger(os.Stderr)
	ctx, cancelFunc := lsctx.WithSignalCancel(context.Background(), logger,
		syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()
	ctx = lsctx.WithServerVersion(ctx, c.Version)

	opts := settings.DefaultOptions()
	opts.Framing = c.framing
	opts.RequestTimeout = c.timeout

	n, err := node.New(ctx, opts)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to set up node: %s", err))
		return 1
	}
	if c.verbose {
		n.SetLogger(logger)
	}
	defer n.Stop()

	endpointID, err := n.Dial(c.address)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	call := n.Transmitter().NewCall(method).EndpointID(endpointID)
	if params != nil {
		call = call.Params(params)
	}

	if c.notify {
		err := call.SendAndSkipResult(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to send notification: %s", err))
			return 1
		}
		return 0
	}

	p, err := transmission.SendAndReceiveOne[json.RawMessage](ctx, call)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to send request: %s", err))
		return 1
	}
	result, err := p.Wait(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Call of %q failed: %s", method, err))
		return 1
	}

	c.Ui.Output(formatResult(result))
	return 0
}

func formatResult(result json.RawMessage) string {
	buf := &bytes.Buffer{}
	err := json.Indent(buf, result, "", "  ")
	if err != nil {
		return string(result)
	}
	return buf.String()
}

func (c *CallCommand) Help() string {
	helpText := `
Usage: che-jsonrpc call [options] method [params]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *CallCommand) Synopsis() string {
	return "Calls a method of a running node and prints the result"
}
