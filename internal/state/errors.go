// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"fmt"
)

type AlreadyExistsError struct {
	Idx string
}

func (e *AlreadyExistsError) Error() string {
	if e.Idx != "" {
		return fmt.Sprintf("%s already exists", e.Idx)
	}
	return "already exists"
}

type RecordNotFoundError struct {
	Source string
}

func (e *RecordNotFoundError) Error() string {
	msg := "record not found"
	if e.Source != "" {
		return fmt.Sprintf("%s: %s", e.Source, msg)
	}

	return msg
}

func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*RecordNotFoundError)
	return ok
}

func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*AlreadyExistsError)
	return ok
}
