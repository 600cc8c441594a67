// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package methods

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=Cardinality -output=cardinality_string.go
type Cardinality uint

const (
	None Cardinality = iota
	One
	Many
)

// Shape describes what a params or result position carries:
// nothing, a single value of Type, or an array of Type elements.
type Shape struct {
	Cardinality Cardinality
	Type        reflect.Type
}

func NoneShape() Shape {
	return Shape{Cardinality: None}
}

func SingleOf[T any]() Shape {
	return Shape{
		Cardinality: One,
		Type:        typeOf[T](),
	}
}

func ArrayOf[T any]() Shape {
	return Shape{
		Cardinality: Many,
		Type:        typeOf[T](),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (s Shape) String() string {
	switch s.Cardinality {
	case None:
		return "none"
	case One:
		return s.Type.String()
	case Many:
		return fmt.Sprintf("[]%s", s.Type)
	}
	return s.Cardinality.String()
}

// Invoker runs a registered handler against the raw params
// of an inbound call. Handlers without a result return nil.
type Invoker func(ctx context.Context, endpointID string, params json.RawMessage) (json.RawMessage, error)

type Descriptor struct {
	Name   string
	Params Shape
	Result Shape
	Invoke Invoker
}

// IsConsumer reports whether the method is only meant
// to receive notifications, i.e. it never has a result.
func (d *Descriptor) IsConsumer() bool {
	return d.Result.Cardinality == None
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%s) -> %s", d.Name, d.Params, d.Result)
}

func (d *Descriptor) validate() error {
	if d == nil {
		return &InvalidConfigurationError{Reason: "descriptor must not be nil"}
	}
	if d.Name == "" {
		return &InvalidConfigurationError{Reason: "method name must not be empty"}
	}
	if d.Invoke == nil {
		return &InvalidConfigurationError{
			Method: d.Name,
			Reason: "handler must not be nil",
		}
	}
	if d.Params.Cardinality != None && d.Params.Type == nil {
		return &InvalidConfigurationError{
			Method: d.Name,
			Reason: "params type must not be nil",
		}
	}
	if d.Result.Cardinality != None && d.Result.Type == nil {
		return &InvalidConfigurationError{
			Method: d.Name,
			Reason: "result type must not be nil",
		}
	}
	return nil
}
