// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package eventbus

import (
	"context"
	"io"
	"log"
	"sync"
)

const ChannelSize = 10

var discardLogger = log.New(io.Discard, "", 0)

// EventBus is a simple event bus that allows for subscribing to and publishing
// events of a specific type.
//
// It has a static list of topics. Each topic can have multiple subscribers.
// When an event is published to a topic, it is sent to all subscribers.
type EventBus struct {
	logger *log.Logger

	endpointConnectedTopic    *Topic[EndpointConnectedEvent]
	endpointDisconnectedTopic *Topic[EndpointDisconnectedEvent]
}

func NewEventBus() *EventBus {
	return &EventBus{
		logger:                    discardLogger,
		endpointConnectedTopic:    NewTopic[EndpointConnectedEvent](),
		endpointDisconnectedTopic: NewTopic[EndpointDisconnectedEvent](),
	}
}

func (eb *EventBus) SetLogger(logger *log.Logger) {
	eb.logger = logger
}

// Topic represents a generic subscription topic
type Topic[T any] struct {
	subscribers []Subscriber[T]
	mutex       sync.Mutex
}

type DoneChannel <-chan struct{}

// Subscriber represents a subscriber to a topic
type Subscriber[T any] struct {
	// channel is the channel to which all events of the topic are sent
	channel chan<- T

	// doneChannel is an optional channel that the subscriber can use to signal
	// that it is done processing the event
	doneChannel DoneChannel

	// ctx ends the subscription, events are no longer sent once it is done
	ctx context.Context
}

// NewTopic creates a new topic
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{
		subscribers: make([]Subscriber[T], 0),
	}
}

// Subscribe adds a subscriber to a topic until ctx is done
func (eb *Topic[T]) Subscribe(ctx context.Context, doneChannel DoneChannel) <-chan T {
	channel := make(chan T, ChannelSize)
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	eb.subscribers = append(eb.subscribers, Subscriber[T]{
		channel:     channel,
		doneChannel: doneChannel,
		ctx:         ctx,
	})
	return channel
}

// Publish sends an event to all subscribers of a specific topic
// and returns the number of subscribers reached
func (eb *Topic[T]) Publish(event T) int {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	active := eb.subscribers[:0]
	reached := 0
	for _, subscriber := range eb.subscribers {
		if subscriber.ctx.Err() != nil {
			continue
		}
		active = append(active, subscriber)

		// Send the event to the subscriber
		select {
		case subscriber.channel <- event:
			reached++
		case <-subscriber.ctx.Done():
			continue
		}

		if subscriber.doneChannel != nil {
			// And wait until the subscriber is done processing it
			select {
			case <-subscriber.doneChannel:
			case <-subscriber.ctx.Done():
			}
		}
	}
	eb.subscribers = active

	return reached
}
