// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const Version = "2.0"

// ID is a JSON-RPC correlation id held in its raw JSON form,
// i.e. a quoted string or a number. The zero value means
// the id is absent.
type ID string

func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID(b)
}

func NumberID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) IsNull() bool {
	return id == "null"
}

// String returns the id without JSON quoting, for use in logs.
func (id ID) String() string {
	if len(id) > 1 && id[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(id), &s); err == nil {
			return s
		}
	}
	return string(id)
}

func parseID(raw json.RawMessage) (ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("empty id")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
	case 'n':
		if string(raw) != "null" {
			return "", fmt.Errorf("invalid id %s", raw)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id must be a string or a number, given %s", raw)
		}
	}
	return ID(raw), nil
}

// Envelope is a single JSON-RPC 2.0 message: a call (request or
// notification), a success response or an error response.
type Envelope struct {
	ID     ID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *ErrorObject
}

type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	we := wireEnvelope{
		JSONRPC: Version,
		Method:  e.Method,
		Params:  e.Params,
		Result:  e.Result,
		Error:   e.Error,
	}
	if !e.ID.IsZero() {
		we.ID = json.RawMessage(e.ID)
	}
	return json.Marshal(we)
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

// validate checks the one-of invariant on an envelope
// built in code rather than parsed from the wire.
func (e *Envelope) validate() error {
	populated := 0
	if e.Method != "" {
		populated++
	}
	if len(e.Result) > 0 {
		populated++
	}
	if e.Error != nil {
		populated++
	}
	if populated != 1 {
		return malformed("exactly one of method, result or error must be set (%d given)", populated)
	}
	if e.Method == "" && e.ID.IsZero() {
		return malformed("response must carry an id")
	}
	if e.Method != "" && e.ID.IsNull() {
		return malformed("call must not carry a null id")
	}
	if e.Result != nil && e.ID.IsNull() {
		return malformed("success response must not carry a null id")
	}
	return nil
}

func (e *Envelope) IsCall() bool {
	return e.Method != ""
}

func (e *Envelope) IsNotification() bool {
	return e.IsCall() && e.ID.IsZero()
}

func (e *Envelope) IsResponse() bool {
	return !e.IsCall()
}

func NewRequest(id ID, method string, params interface{}) (*Envelope, error) {
	if id.IsZero() || id.IsNull() {
		return nil, malformed("request requires an id")
	}
	env, err := NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	env.ID = id
	return env, nil
}

func NewNotification(method string, params interface{}) (*Envelope, error) {
	if method == "" {
		return nil, malformed("method name must not be empty")
	}
	raw, err := marshalValue(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params for %q: %w", method, err)
	}
	return &Envelope{
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse builds a success response. A nil result is
// encoded as JSON null so that the envelope stays a response.
func NewResponse(id ID, result interface{}) (*Envelope, error) {
	if id.IsZero() || id.IsNull() {
		return nil, malformed("response requires an id")
	}
	raw, err := marshalValue(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &Envelope{
		ID:     id,
		Result: raw,
	}, nil
}

func NewErrorResponse(id ID, eo *ErrorObject) *Envelope {
	if id.IsZero() {
		id = "null"
	}
	return &Envelope{
		ID:    id,
		Error: eo,
	}
}

func marshalValue(v interface{}) (json.RawMessage, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(tv) == 0 {
			return nil, nil
		}
		return tv, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
