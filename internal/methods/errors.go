// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package methods

import (
	"errors"
	"fmt"

	"github.com/creachadair/jrpc2/code"
)

type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %q", e.Method)
}

func (e *MethodNotFoundError) ErrCode() code.Code {
	return code.MethodNotFound
}

func IsMethodNotFound(err error) bool {
	var mnf *MethodNotFoundError
	return errors.As(err, &mnf)
}

// DuplicateMethodWarning is returned when a registration replaced
// an existing descriptor. It is not fatal, the new descriptor
// is already in place when the warning is returned.
type DuplicateMethodWarning struct {
	Method   string
	Previous *Descriptor
}

func (e *DuplicateMethodWarning) Error() string {
	return fmt.Sprintf("method %q was already registered (%s), replaced",
		e.Method, e.Previous)
}

func IsDuplicateMethod(err error) bool {
	var dmw *DuplicateMethodWarning
	return errors.As(err, &dmw)
}

type InvalidConfigurationError struct {
	Method string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("invalid configuration for %q: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func IsInvalidConfiguration(err error) bool {
	var ice *InvalidConfigurationError
	return errors.As(err, &ice)
}
