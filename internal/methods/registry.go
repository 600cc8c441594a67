// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package methods

import (
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/creachadair/jrpc2/metrics"
)

const overwrittenMetric = "methods.overwritten"

// OverwriteHook is called after a registration replaced
// an already registered descriptor of the same name.
type OverwriteHook func(previous, current *Descriptor)

// Registry maps method names to descriptors. Lookups happen on
// every inbound call while writes only happen when handlers
// are (re)configured, hence the read-write lock.
//
// Registering a name which is already bound replaces the descriptor.
// This is deliberate (handlers can be reconfigured at runtime),
// so every overwrite is counted and reported via hooks.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*Descriptor

	overwrites int64
	hooks      []OverwriteHook

	logger  *log.Logger
	metrics *metrics.M
}

var defaultLogger = log.New(io.Discard, "", 0)

func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]*Descriptor),
		logger:  defaultLogger,
	}
}

func (r *Registry) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Registry) SetMetrics(m *metrics.M) {
	r.metrics = m
}

func (r *Registry) OnOverwrite(hook OverwriteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Registry) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	previous, exists := r.methods[d.Name]
	r.methods[d.Name] = d
	hooks := r.hooks
	r.mu.Unlock()

	if !exists {
		r.logger.Printf("registered method %s", d)
		return nil
	}

	atomic.AddInt64(&r.overwrites, 1)
	r.metrics.Count(overwrittenMetric, 1)
	r.logger.Printf("[WARN] method %q re-registered: %s replaced by %s",
		d.Name, previous, d)

	for _, hook := range hooks {
		hook(previous, d)
	}

	return &DuplicateMethodWarning{
		Method:   d.Name,
		Previous: previous,
	}
}

func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.methods[name]
	if !ok {
		return nil, &MethodNotFoundError{Method: name}
	}
	return d, nil
}

// Unregister removes the method. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.methods[name]; ok {
		delete(r.methods, name)
		r.logger.Printf("unregistered method %q", name)
	}
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Overwrites returns how many registrations replaced an existing method.
func (r *Registry) Overwrites() int64 {
	return atomic.LoadInt64(&r.overwrites)
}
