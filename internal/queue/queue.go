// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue hands each AMQP consumer tag (or a one-shot basic.get, or
// the channel's returned-message stream) its own bounded, blocking
// delivery queue, fed by a single producer: the channel's frame-dispatch
// goroutine.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Queue is one consumer's delivery stream.
type Queue interface {
	// ID is the queue's unique identifier, a random UUID assigned when the
	// queue is created.
	ID() string

	// PopTimeout blocks for up to timeout waiting for one delivery. The
	// bool is false on timeout or after Close.
	PopTimeout(timeout time.Duration) (any, bool)

	// Push enqueues one delivery. Push never blocks: a full queue drops
	// the oldest pending delivery in favor of the new one, since this
	// library's flow control (basic.qos prefetch) is what is supposed to
	// keep producers from outrunning consumers in the first place.
	Push(data any)

	// Close releases the queue. Further Push calls are no-ops; pending
	// PopTimeout calls return immediately.
	Close()
}

type channel struct {
	id     string
	ch     chan any
	closed atomic.Bool
}

func newChannel(size int) Queue {
	if size <= 0 {
		size = 1
	}
	return &channel{
		id: uuid.New().String(),
		ch: make(chan any, size),
	}
}

func (ch *channel) ID() string {
	return ch.id
}

func (ch *channel) PopTimeout(timeout time.Duration) (any, bool) {
	if ch.closed.Load() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case data, ok := <-ch.ch:
		return data, ok
	case <-ctx.Done():
		return nil, false
	}
}

func (ch *channel) Push(data any) {
	if ch.closed.Load() {
		return
	}

	select {
	case ch.ch <- data:
	default:
		// Queue is full: drop the oldest delivery to make room rather than
		// block the dispatch goroutine, which also has to service every
		// other consumer tag on this channel.
		select {
		case <-ch.ch:
		default:
		}
		select {
		case ch.ch <- data:
		default:
		}
	}
}

func (ch *channel) Close() {
	if ch.closed.CompareAndSwap(false, true) {
		close(ch.ch)
	}
}

// Registry tracks every live Queue a Channel owns, keyed by consumer tag
// (or by a synthetic key for the returned-message stream / basic.get-ok
// slot).
type Registry struct {
	mut    sync.RWMutex
	queues map[string]Queue
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]Queue)}
}

func (r *Registry) Num() int {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return len(r.queues)
}

// Open creates a new queue under key, replacing any existing one (the
// caller is responsible for having closed a prior queue under the same
// key first).
func (r *Registry) Open(key string, size int) Queue {
	r.mut.Lock()
	defer r.mut.Unlock()

	q := newChannel(size)
	r.queues[key] = q
	return q
}

// Get returns the queue registered under key, if any.
func (r *Registry) Get(key string) (Queue, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	q, ok := r.queues[key]
	return q, ok
}

// Dispatch pushes data onto the queue registered under key. It is a no-op
// if no such queue exists (e.g. a delivery arrived after basic.cancel-ok
// raced it).
func (r *Registry) Dispatch(key string, data any) {
	r.mut.RLock()
	q, ok := r.queues[key]
	r.mut.RUnlock()
	if ok {
		q.Push(data)
	}
}

// CloseAll closes and forgets every queue, e.g. on channel close.
func (r *Registry) CloseAll() {
	r.mut.Lock()
	defer r.mut.Unlock()
	for k, q := range r.queues {
		q.Close()
		delete(r.queues, k)
	}
}

// Close closes and forgets the queue registered under key.
func (r *Registry) Close(key string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if q, ok := r.queues[key]; ok {
		q.Close()
		delete(r.queues, key)
	}
}
