// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeOptions_nil(t *testing.T) {
	out, err := DecodeOptions(nil)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(DefaultOptions(), out.Options); diff != "" {
		t.Fatalf("expected default options for nil: %s", diff)
	}
}

func TestDecodeOptions_wrongType(t *testing.T) {
	_, err := DecodeOptions(map[string]interface{}{
		"peers": 42,
	})
	if err == nil {
		t.Fatal("expected decoding of wrong type to result in error")
	}
}

func TestDecodeOptions_success(t *testing.T) {
	out, err := DecodeOptions(map[string]interface{}{
		"address":        "127.0.0.1:9000",
		"framing":        "line",
		"requestTimeout": "5s",
		"peers":          []string{"10.0.0.1:9000"},
		"rateLimit": map[string]interface{}{
			"messagesPerSecond": 100,
			"burst":             10,
		},
		"unknownKey": true,
	})
	if err != nil {
		t.Fatal(err)
	}

	expectedOptions := &Options{
		Address:        "127.0.0.1:9000",
		Framing:        FramingLine,
		RequestTimeout: 5 * time.Second,
		Peers:          []string{"10.0.0.1:9000"},
		RateLimit: RateLimit{
			MessagesPerSecond: 100,
			Burst:             10,
		},
	}
	if diff := cmp.Diff(expectedOptions, out.Options); diff != "" {
		t.Fatalf("options mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"unknownKey"}, out.UnusedKeys); diff != "" {
		t.Fatalf("unused keys mismatch: %s", diff)
	}
}

func TestOptions_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		options *Options
		valid   bool
	}{
		{"defaults", DefaultOptions(), true},
		{"unknown framing", &Options{Framing: "varint"}, false},
		{"negative concurrency", &Options{Framing: FramingLSP, RequestConcurrency: -1}, false},
		{"negative timeout", &Options{Framing: FramingLSP, RequestTimeout: -time.Second}, false},
		{"rate without burst", &Options{
			Framing:   FramingLSP,
			RateLimit: RateLimit{MessagesPerSecond: 10},
		}, false},
		{"empty peer", &Options{Framing: FramingLine, Peers: []string{""}}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.options.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected options to be valid: %s", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected options to fail validation")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "che-jsonrpc.toml")
	err := os.WriteFile(path, []byte(`
address = "127.0.0.1:4444"
framing = "lsp"
requestConcurrency = 4
requestTimeout = "250ms"

[rateLimit]
messagesPerSecond = 50.0
burst = 5
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	out, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.UnusedKeys) != 0 {
		t.Fatalf("unexpected unused keys: %q", out.UnusedKeys)
	}

	expectedOptions := &Options{
		Address:            "127.0.0.1:4444",
		Framing:            FramingLSP,
		RequestConcurrency: 4,
		RequestTimeout:     250 * time.Millisecond,
		RateLimit: RateLimit{
			MessagesPerSecond: 50,
			Burst:             5,
		},
	}
	if diff := cmp.Diff(expectedOptions, out.Options); diff != "" {
		t.Fatalf("options mismatch: %s", diff)
	}
}

func TestLoadFile_notFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected missing file to fail")
	}
}
