// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package telemetry exports spans of handled calls.
package telemetry

import (
	"context"
	"runtime"

	"github.com/honeycombio/honeycomb-opentelemetry-go"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel/attribute"
)

// APIKeyEnvVar enables span export when set
const APIKeyEnvVar = "CHE_JSONRPC_HONEYCOMB_API_KEY"

type ShutdownFunc func(context.Context) error

// NodeAttributes describe the process exporting spans
func NodeAttributes(version string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", "che-jsonrpc"),
		attribute.String("service.version", version),
		attribute.String("os", runtime.GOOS),
		attribute.String("arch", runtime.GOARCH),
	}
}

func InitHoneycomb(apiKey string, attributeKvs []attribute.KeyValue) (ShutdownFunc, error) {
	attributes := make(map[string]string)
	for _, kvPair := range attributeKvs {
		attributes[string(kvPair.Key)] = kvPair.Value.Emit()
	}

	bsp := honeycomb.NewBaggageSpanProcessor()
	f, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithSpanProcessor(bsp),
		otelconfig.WithResourceAttributes(attributes),
		otelconfig.WithExporterEndpoint("api.honeycomb.io:443"),
		otelconfig.WithHeaders(map[string]string{
			"x-honeycomb-team": apiKey,
		}),
	)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context) error {
		f()
		return nil
	}, nil
}
