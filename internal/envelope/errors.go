// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creachadair/jrpc2/code"
)

// ErrorObject is the "error" member of a JSON-RPC error response.
type ErrorObject struct {
	Code    code.Code       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Code)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// ErrCode makes the error object recognisable by code.FromError
func (e *ErrorObject) ErrCode() code.Code {
	return e.Code
}

func errorCode(c int32) code.Code {
	return code.Code(c)
}

// ErrorFromError converts an error returned by a handler
// into an error object suitable for an error response.
func ErrorFromError(err error) *ErrorObject {
	if err == nil {
		return nil
	}

	var eo *ErrorObject
	if errors.As(err, &eo) {
		return eo
	}

	return &ErrorObject{
		Code:    code.FromError(err),
		Message: err.Error(),
	}
}

func NewError(c code.Code, format string, args ...interface{}) *ErrorObject {
	return &ErrorObject{
		Code:    c,
		Message: fmt.Sprintf(format, args...),
	}
}

type MalformedEnvelopeError struct {
	Reason string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope: %s", e.Reason)
}

func IsMalformedEnvelope(err error) bool {
	var me *MalformedEnvelopeError
	return errors.As(err, &me)
}

func malformed(format string, args ...interface{}) error {
	return &MalformedEnvelopeError{
		Reason: fmt.Sprintf(format, args...),
	}
}

func malformedErr(err error) error {
	return &MalformedEnvelopeError{
		Reason: err.Error(),
	}
}
