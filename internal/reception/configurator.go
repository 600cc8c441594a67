// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package reception provides the builders used to register handlers
// for inbound JSON-RPC calls.
//
// A registration is made in three steps: pick the method name,
// pick the shape (params and result cardinality) and supply the handler:
//
//	cfg := reception.NewConfigurator(registry)
//	err := reception.OneToOne[int, int](cfg.NewRequestHandler("ping")).
//		WithFunction(func(ctx context.Context, endpointID string, n int) (int, error) {
//			return n + 1, nil
//		})
//
// Each shape has its own builder type, so a handler which cannot
// produce a result (e.g. OneToNone) has no way of being given one.
package reception

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/creachadair/jrpc2/code"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

type Registrar interface {
	Register(d *methods.Descriptor) error
}

type Configurator struct {
	registrar Registrar
	logger    *log.Logger
}

var defaultLogger = log.New(io.Discard, "", 0)

func NewConfigurator(r Registrar) *Configurator {
	return &Configurator{
		registrar: r,
		logger:    defaultLogger,
	}
}

func (c *Configurator) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// Method is the first step of a registration, carrying the method name.
type Method struct {
	cfg  *Configurator
	name string
}

func (c *Configurator) NewRequestHandler(method string) Method {
	return Method{
		cfg:  c,
		name: method,
	}
}

// register is the terminal step shared by every shape
func (m Method) register(params, result methods.Shape, handlerIsNil bool, invoke methods.Invoker) error {
	if m.cfg == nil || m.cfg.registrar == nil {
		return &methods.InvalidConfigurationError{
			Method: m.name,
			Reason: "no registry configured",
		}
	}
	if m.name == "" {
		return &methods.InvalidConfigurationError{
			Reason: "method name must not be empty",
		}
	}
	if handlerIsNil {
		return &methods.InvalidConfigurationError{
			Method: m.name,
			Reason: "handler must not be nil",
		}
	}

	m.cfg.logger.Printf("configuring inbound handler for method %q, params: %s, result: %s",
		m.name, params, result)

	err := m.cfg.registrar.Register(&methods.Descriptor{
		Name:   m.name,
		Params: params,
		Result: result,
		Invoke: invoke,
	})
	if methods.IsDuplicateMethod(err) {
		m.cfg.logger.Printf("[WARN] %s", err)
		return nil
	}
	return err
}

func decodeOne[P any](method string, raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: %q expects params", code.InvalidParams.Err(), method)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %s", code.InvalidParams.Err(), err)
	}
	return p, nil
}

func decodeMany[P any](method string, raw json.RawMessage) ([]P, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []P{}, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: %q expects params as an array", code.InvalidParams.Err(), method)
	}
	var ps []P
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("%w: %s", code.InvalidParams.Err(), err)
	}
	return ps, nil
}

func encodeOne[R any](r R) (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode result: %s", code.InternalError.Err(), err)
	}
	return b, nil
}

func encodeMany[R any](rs []R) (json.RawMessage, error) {
	if rs == nil {
		rs = []R{}
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode result: %s", code.InternalError.Err(), err)
	}
	return b, nil
}
