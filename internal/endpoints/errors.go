// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package endpoints

import "fmt"

type BroadcastError struct {
	EndpointID string
	Err        error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("%s: %s", e.EndpointID, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}
