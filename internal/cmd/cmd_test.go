// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lsctx "github.com/eclipse-che/che-jsonrpc/internal/context"
	"github.com/eclipse-che/che-jsonrpc/internal/node"
	"github.com/eclipse-che/che-jsonrpc/internal/settings"
	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/cli"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestServeCommand_options(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "node.toml")
	err := os.WriteFile(cfgPath, []byte(`
address = "localhost:4000"
framing = "line"
requestTimeout = "5s"
peers = ["10.0.0.1:4389"]
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	c := &ServeCommand{Ui: cli.NewMockUi()}
	err = c.flags().Parse([]string{
		"-config", cfgPath,
		"-address", "localhost:5000",
		"-req-concurrency", "3",
		"-peer", "10.0.0.2:4389",
	})
	if err != nil {
		t.Fatal(err)
	}

	opts, err := c.options(discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	expected := &settings.Options{
		Address:            "localhost:5000",
		Framing:            settings.FramingLine,
		RequestConcurrency: 3,
		RequestTimeout:     5 * time.Second,
		Peers:              []string{"10.0.0.1:4389", "10.0.0.2:4389"},
	}
	if diff := cmp.Diff(expected, opts); diff != "" {
		t.Fatalf("unexpected options: %s", diff)
	}
}

func TestServeCommand_invalidOptions(t *testing.T) {
	c := &ServeCommand{Ui: cli.NewMockUi()}
	err := c.flags().Parse([]string{"-framing", "xml"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.options(discardLogger())
	if err == nil {
		t.Fatal("expected unknown framing to fail")
	}
}

func TestVersionCommand_json(t *testing.T) {
	ui := cli.NewMockUi()
	c := &VersionCommand{
		Ui:      ui,
		Version: "1.2.3",
		BuildInfo: &BuildInfo{
			GoVersion: "1.20",
			GoOS:      "linux",
			GoArch:    "amd64",
		},
	}

	if code := c.Run([]string{"-json"}); code != 0 {
		t.Fatalf("unexpected exit code %d: %s", code, ui.ErrorWriter.String())
	}

	expected := `{
  "version": "1.2.3",
  "jsonrpc": "2.0",
  "go_version": "1.20",
  "go_os": "linux",
  "go_arch": "amd64"
}
`
	if diff := cmp.Diff(expected, ui.OutputWriter.String()); diff != "" {
		t.Fatalf("unexpected output: %s", diff)
	}
}

func TestCallCommand(t *testing.T) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	ctx = lsctx.WithServerVersion(ctx, "1.2.3")

	n, err := node.New(ctx, settings.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go n.Serve(lst)

	ui := cli.NewMockUi()
	c := &CallCommand{Ui: ui, Version: "0.0.1"}
	code := c.Run([]string{
		"-address", lst.Addr().String(),
		"rpc/echo", `{"hello":"world"}`,
	})
	if code != 0 {
		t.Fatalf("unexpected exit code %d: %s", code, ui.ErrorWriter.String())
	}

	expected := "{\n  \"hello\": \"world\"\n}\n"
	if diff := cmp.Diff(expected, ui.OutputWriter.String()); diff != "" {
		t.Fatalf("unexpected output: %s", diff)
	}
}

func TestCallCommand_invalidParams(t *testing.T) {
	ui := cli.NewMockUi()
	c := &CallCommand{Ui: ui}

	code := c.Run([]string{"rpc/echo", `{not json`})
	if code != 1 {
		t.Fatalf("expected exit code 1, given %d", code)
	}
	if !strings.Contains(ui.ErrorWriter.String(), "valid JSON") {
		t.Fatalf("unexpected error output: %q", ui.ErrorWriter.String())
	}
}
