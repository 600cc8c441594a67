// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
)

const (
	FramingLine = "line"
	FramingLSP  = "lsp"

	DefaultRequestTimeout = 30 * time.Second
)

type RateLimit struct {
	// MessagesPerSecond limits inbound messages of each endpoint,
	// zero means unlimited
	MessagesPerSecond float64 `mapstructure:"messagesPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

type Options struct {
	// Address to listen on for incoming endpoint connections
	Address string `mapstructure:"address"`

	// Framing of messages on the wire, either "line" or "lsp"
	Framing string `mapstructure:"framing"`

	RequestConcurrency int           `mapstructure:"requestConcurrency"`
	RequestTimeout     time.Duration `mapstructure:"requestTimeout"`
	RateLimit          RateLimit     `mapstructure:"rateLimit"`

	// Peers describes a list of addresses to connect to on start
	Peers []string `mapstructure:"peers"`

	LogFilePath string `mapstructure:"logFilePath"`
}

func DefaultOptions() *Options {
	return &Options{
		Framing:        FramingLSP,
		RequestTimeout: DefaultRequestTimeout,
	}
}

func (o *Options) Validate() error {
	switch o.Framing {
	case FramingLine, FramingLSP:
	default:
		return fmt.Errorf("unknown framing %q, expected %q or %q",
			o.Framing, FramingLine, FramingLSP)
	}

	if o.RequestConcurrency < 0 {
		return fmt.Errorf("requestConcurrency must not be negative, got %d", o.RequestConcurrency)
	}

	if o.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must not be negative, got %s", o.RequestTimeout)
	}

	if o.RateLimit.MessagesPerSecond < 0 {
		return fmt.Errorf("rateLimit.messagesPerSecond must not be negative, got %g",
			o.RateLimit.MessagesPerSecond)
	}
	if o.RateLimit.MessagesPerSecond > 0 && o.RateLimit.Burst < 1 {
		return fmt.Errorf("rateLimit.burst must be at least 1 when a rate is set, got %d",
			o.RateLimit.Burst)
	}

	for _, peer := range o.Peers {
		if peer == "" {
			return fmt.Errorf("peer address must not be empty")
		}
	}

	return nil
}

type DecodedOptions struct {
	Options    *Options
	UnusedKeys []string
}

// DecodeOptions decodes input on top of the default options
func DecodeOptions(input interface{}) (*DecodedOptions, error) {
	var md mapstructure.Metadata
	options := DefaultOptions()

	config := &mapstructure.DecoderConfig{
		Metadata:   &md,
		Result:     options,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		panic(err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if options.LogFilePath != "" {
		options.LogFilePath, err = homedir.Expand(options.LogFilePath)
		if err != nil {
			return nil, err
		}
	}

	return &DecodedOptions{
		Options:    options,
		UnusedKeys: md.Unused,
	}, nil
}

// LoadFile reads options from a TOML file, "~" in the path
// is expanded to the home directory.
func LoadFile(path string) (*DecodedOptions, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]interface{}, 0)
	_, err = toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	return DecodeOptions(raw)
}
