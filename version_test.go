// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"testing"
)

func TestVersionString(t *testing.T) {
	expected := version
	if prerelease != "" {
		expected += "-" + prerelease
	}
	if v := VersionString(); v != expected {
		t.Fatalf("expected %q, given %q", expected, v)
	}
}
