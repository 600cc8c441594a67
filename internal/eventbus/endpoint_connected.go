// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package eventbus

import (
	"context"
	"time"
)

// EndpointConnectedEvent signals that a remote endpoint became
// reachable and requests can be addressed to it.
type EndpointConnectedEvent struct {
	EndpointID  string
	RemoteAddr  string
	ConnectedAt time.Time
}

func (n *EventBus) OnEndpointConnected(ctx context.Context, identifier string, doneChannel DoneChannel) <-chan EndpointConnectedEvent {
	n.logger.Printf("bus: %q subscribed to OnEndpointConnected", identifier)
	return n.endpointConnectedTopic.Subscribe(ctx, doneChannel)
}

func (n *EventBus) EndpointConnected(e EndpointConnectedEvent) {
	n.logger.Printf("bus: -> EndpointConnected %s", e.EndpointID)
	n.endpointConnectedTopic.Publish(e)
}
