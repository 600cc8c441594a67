// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package node

import (
	"context"
	"fmt"
	"log"

	"github.com/eclipse-che/che-jsonrpc/internal/envelope"
)

type rpcLogger struct {
	logger *log.Logger
}

func (rl *rpcLogger) LogRequest(ctx context.Context, endpointID string, req *envelope.Envelope) {
	idStr := ""
	if !req.ID.IsZero() {
		idStr = fmt.Sprintf(" (ID %s)", req.ID)
	}
	reqType := "request"
	if req.IsNotification() {
		reqType = "notification"
	}

	rl.logger.Printf("Incoming %s for %q%s from %q: %s",
		reqType, req.Method, idStr, endpointID, req.Params)
}

func (rl *rpcLogger) LogResponse(ctx context.Context, endpointID string, req, rsp *envelope.Envelope) {
	idStr := ""
	if !rsp.ID.IsZero() {
		idStr = fmt.Sprintf(" (ID %s)", rsp.ID)
	}

	if rsp.Error != nil {
		rl.logger.Printf("Error for %q%s to %q: %s", req.Method, idStr, endpointID, rsp.Error)
		return
	}
	rl.logger.Printf("Response to %q%s to %q: %s", req.Method, idStr, endpointID, rsp.Result)
}
