// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package eventbus

import "context"

// EndpointDisconnectedEvent signals that a remote endpoint went away.
// Pending requests addressed to it have already been failed
// by the time the event is published.
type EndpointDisconnectedEvent struct {
	EndpointID string

	// CancelledRequests is the number of pending requests
	// failed because of the disconnect
	CancelledRequests int
}

func (n *EventBus) OnEndpointDisconnected(ctx context.Context, identifier string, doneChannel DoneChannel) <-chan EndpointDisconnectedEvent {
	n.logger.Printf("bus: %q subscribed to OnEndpointDisconnected", identifier)
	return n.endpointDisconnectedTopic.Subscribe(ctx, doneChannel)
}

func (n *EventBus) EndpointDisconnected(e EndpointDisconnectedEvent) {
	n.logger.Printf("bus: -> EndpointDisconnected %s", e.EndpointID)
	n.endpointDisconnectedTopic.Publish(e)
}
