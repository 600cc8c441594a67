// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transmission

import (
	"errors"
	"fmt"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

type InvalidCallError struct {
	Method string
	Reason string
}

func (e *InvalidCallError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("invalid call of %q: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("invalid call: %s", e.Reason)
}

func IsInvalidCall(err error) bool {
	var ice *InvalidCallError
	return errors.As(err, &ice)
}

// UnexpectedResultError is returned when the result of a request
// does not match the shape the caller asked for.
type UnexpectedResultError struct {
	Method   string
	Expected methods.Shape
	Err      error
}

func (e *UnexpectedResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("result of %q is not %s: %s", e.Method, e.Expected, e.Err)
	}
	return fmt.Sprintf("result of %q is not %s", e.Method, e.Expected)
}

func (e *UnexpectedResultError) Unwrap() error {
	return e.Err
}

func IsUnexpectedResult(err error) bool {
	var ure *UnexpectedResultError
	return errors.As(err, &ure)
}
