// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/metrics"
	"github.com/hashicorp/go-uuid"
	"golang.org/x/time/rate"
)

var ErrStreamClosed = errors.New("stream transport is closed")

// Stream carries framed JSON-RPC messages over any number
// of byte streams, one per remote endpoint.
type Stream struct {
	framing  channel.Framing
	receiver Receiver
	logger   *log.Logger
	metrics  *metrics.M

	rateLimit rate.Limit
	rateBurst int

	connsMu sync.RWMutex
	conns   map[string]*conn
	closed  bool

	wg sync.WaitGroup
}

type conn struct {
	id         string
	remoteAddr string
	ch         channel.Channel
	limiter    *rate.Limiter

	// channels allow one concurrent sender only
	sendMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ch.Close()
	})
	return err
}

func NewStream(framing channel.Framing) *Stream {
	return &Stream{
		framing:   framing,
		logger:    log.New(io.Discard, "", 0),
		rateLimit: rate.Inf,
		conns:     make(map[string]*conn, 0),
	}
}

func (s *Stream) SetLogger(logger *log.Logger) {
	s.logger = logger
}

func (s *Stream) SetMetrics(m *metrics.M) {
	s.metrics = m
}

// SetReceiver sets the receiver of messages and endpoint
// lifecycle events. It must be called before any endpoint
// is attached.
func (s *Stream) SetReceiver(r Receiver) {
	s.receiver = r
}

// SetRateLimit limits inbound messages of each endpoint.
// Messages over the limit are delayed, not dropped.
// Zero or negative messagesPerSecond disables the limit.
func (s *Stream) SetRateLimit(messagesPerSecond float64, burst int) {
	if messagesPerSecond <= 0 {
		s.rateLimit = rate.Inf
		return
	}
	s.rateLimit = rate.Limit(messagesPerSecond)
	s.rateBurst = burst
}

// Serve accepts connections from the listener until ctx is done
// or the listener fails. Each accepted connection becomes an
// endpoint with a freshly generated ID.
func (s *Stream) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		id, err := uuid.GenerateUUID()
		if err != nil {
			s.logger.Printf("failed to generate endpoint ID: %s", err)
			nc.Close()
			continue
		}

		err = s.attach(ctx, id, nc.RemoteAddr().String(), s.framing(nc, nc))
		if err != nil {
			s.logger.Printf("failed to attach %q: %s", nc.RemoteAddr(), err)
			nc.Close()
		}
	}
}

// Dial connects to a remote endpoint and returns its ID
func (s *Stream) Dial(ctx context.Context, address string) (string, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", err
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		nc.Close()
		return "", err
	}

	err = s.attach(ctx, id, nc.RemoteAddr().String(), s.framing(nc, nc))
	if err != nil {
		nc.Close()
		return "", err
	}
	return id, nil
}

// Attach makes an existing channel an endpoint under the given ID
func (s *Stream) Attach(ctx context.Context, id string, ch channel.Channel) error {
	return s.attach(ctx, id, "", ch)
}

func (s *Stream) attach(ctx context.Context, id, remoteAddr string, ch channel.Channel) error {
	if s.receiver == nil {
		return errors.New("no receiver set")
	}

	c := &conn{
		id:         id,
		remoteAddr: remoteAddr,
		ch:         ch,
		done:       make(chan struct{}),
	}
	if s.rateLimit != rate.Inf {
		c.limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}

	s.connsMu.Lock()
	if s.closed {
		s.connsMu.Unlock()
		return ErrStreamClosed
	}
	if _, ok := s.conns[id]; ok {
		s.connsMu.Unlock()
		return fmt.Errorf("endpoint %q is already attached", id)
	}
	s.conns[id] = c
	s.connsMu.Unlock()

	s.logger.Printf("endpoint %q attached (remote: %q)", id, remoteAddr)
	s.metrics.Count("transport.attached", 1)
	s.receiver.OnConnect(id, remoteAddr)

	s.wg.Add(1)
	go s.readLoop(ctx, c)
	return nil
}

func (s *Stream) readLoop(ctx context.Context, c *conn) {
	defer s.wg.Done()
	defer s.detach(c)

	msgs := make(chan []byte)
	go func() {
		defer close(msgs)
		for {
			msg, err := c.ch.Recv()
			if err != nil {
				if err != io.EOF && !channel.IsErrClosing(err) {
					s.logger.Printf("endpoint %q: read failed: %s", c.id, err)
				}
				return
			}
			select {
			case msgs <- msg:
			case <-c.done:
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if c.limiter != nil {
				err := c.limiter.Wait(ctx)
				if err != nil {
					return
				}
			}
			s.metrics.Count("transport.messages_received", 1)
			s.receiver.OnMessage(c.id, msg)
		}
	}
}

func (s *Stream) detach(c *conn) {
	s.connsMu.Lock()
	if cur, ok := s.conns[c.id]; ok && cur == c {
		delete(s.conns, c.id)
	}
	s.connsMu.Unlock()

	err := c.close()
	if err != nil {
		s.logger.Printf("endpoint %q: close failed: %s", c.id, err)
	}

	s.logger.Printf("endpoint %q detached", c.id)
	s.metrics.Count("transport.detached", 1)
	s.receiver.OnDisconnect(c.id)
}

func (s *Stream) Send(ctx context.Context, endpointID string, msg []byte) error {
	s.connsMu.RLock()
	c, ok := s.conns[endpointID]
	s.connsMu.RUnlock()
	if !ok {
		return &UnknownEndpointError{EndpointID: endpointID}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.done:
		return &UnknownEndpointError{EndpointID: endpointID}
	default:
	}

	err := c.ch.Send(msg)
	if err != nil {
		return err
	}
	s.metrics.Count("transport.messages_sent", 1)
	return nil
}

// Disconnect closes the connection of the given endpoint
func (s *Stream) Disconnect(endpointID string) error {
	s.connsMu.RLock()
	c, ok := s.conns[endpointID]
	s.connsMu.RUnlock()
	if !ok {
		return &UnknownEndpointError{EndpointID: endpointID}
	}

	return c.close()
}

// Endpoints returns IDs of all attached endpoints
func (s *Stream) Endpoints() []string {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()

	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects all endpoints and waits for their
// read loops to finish.
func (s *Stream) Close() error {
	s.connsMu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		c.close()
	}

	s.wg.Wait()
	return nil
}
