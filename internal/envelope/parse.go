// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package envelope

import (
	"bytes"
	"encoding/json"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=Class -output=class_string.go
type Class uint

const (
	ClassNotification Class = iota
	ClassRequest
	ClassResponse
	ClassErrorResponse
)

// Classify tells which kind of message the envelope is
// purely from the fields which are populated.
func Classify(e *Envelope) Class {
	switch {
	case e.Method != "" && e.ID.IsZero():
		return ClassNotification
	case e.Method != "":
		return ClassRequest
	case e.Error != nil:
		return ClassErrorResponse
	}
	return ClassResponse
}

// Parse decodes a single JSON-RPC 2.0 message and enforces
// that it is exactly one of a call, a success response
// or an error response.
func Parse(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, malformed("expected a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, malformedErr(err)
	}

	rawVersion, ok := fields["jsonrpc"]
	if !ok {
		return nil, malformed("missing jsonrpc version")
	}
	var version string
	if err := json.Unmarshal(rawVersion, &version); err != nil || version != Version {
		return nil, malformed("unsupported jsonrpc version %s", rawVersion)
	}

	env := &Envelope{}

	rawMethod, hasMethod := fields["method"]
	rawResult, hasResult := fields["result"]
	rawError, hasError := fields["error"]
	rawID, hasID := fields["id"]

	populated := 0
	for _, present := range []bool{hasMethod, hasResult, hasError} {
		if present {
			populated++
		}
	}
	if populated != 1 {
		return nil, malformed("exactly one of method, result or error must be present (%d given)", populated)
	}

	if hasID {
		id, err := parseID(rawID)
		if err != nil {
			return nil, malformedErr(err)
		}
		env.ID = id
	}

	switch {
	case hasMethod:
		if err := json.Unmarshal(rawMethod, &env.Method); err != nil {
			return nil, malformed("method must be a string")
		}
		if env.Method == "" {
			return nil, malformed("method must not be empty")
		}
		if env.ID.IsNull() {
			return nil, malformed("call must not carry a null id")
		}
		if params, ok := fields["params"]; ok {
			env.Params = params
		}
	case hasResult:
		if !hasID || env.ID.IsNull() {
			return nil, malformed("success response must carry an id")
		}
		env.Result = rawResult
	case hasError:
		if !hasID {
			return nil, malformed("error response must carry an id")
		}
		eo, err := parseErrorObject(rawError)
		if err != nil {
			return nil, err
		}
		env.Error = eo
	}

	return env, nil
}

// ParseBatch accepts either a single message or a JSON array
// of messages. Any malformed element fails the whole batch.
func ParseBatch(raw []byte) ([]*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, malformedErr(err)
		}
		if len(items) == 0 {
			return nil, malformed("empty batch")
		}
		envs := make([]*Envelope, 0, len(items))
		for _, item := range items {
			env, err := Parse(item)
			if err != nil {
				return nil, err
			}
			envs = append(envs, env)
		}
		return envs, nil
	}

	env, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return []*Envelope{env}, nil
}

func parseErrorObject(raw json.RawMessage) (*ErrorObject, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, malformed("error must be an object")
	}

	eo := &ErrorObject{}

	rawCode, ok := fields["code"]
	if !ok {
		return nil, malformed("error object is missing code")
	}
	var c int32
	if err := json.Unmarshal(rawCode, &c); err != nil {
		return nil, malformed("error code must be an integer")
	}
	eo.Code = errorCode(c)

	rawMsg, ok := fields["message"]
	if !ok {
		return nil, malformed("error object is missing message")
	}
	if err := json.Unmarshal(rawMsg, &eo.Message); err != nil {
		return nil, malformed("error message must be a string")
	}

	if data, ok := fields["data"]; ok {
		eo.Data = data
	}

	return eo, nil
}
