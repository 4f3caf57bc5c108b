// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eventbus fans demo events out to live subscribers.
//
// # Description
//
// The Bus delivers every published event to every subscriber active at
// publish time, in publish order per subscriber. Publishing never
// blocks: each subscriber has a bounded buffer, and when a slow
// consumer fills it the oldest buffered event is dropped to make room
// for the new one. A dashboard that falls behind loses history, not
// the live edge.
//
// # Limitations
//
// Delivery is at-most-once and in-process only. Events published
// before a Subscribe call are not replayed; handlers that need a
// baseline send their own snapshot first.
package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/observability"
)

// subscriberBuffer is the per-subscriber channel capacity. Sized for a
// full demo run's event volume with headroom.
const subscriberBuffer = 64

// Bus is the in-process event fan-out. The zero value is not usable;
// call NewBus.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan datatypes.Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan datatypes.Event)}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The channel is closed by Unsubscribe and never by the
// publisher.
func (b *Bus) Subscribe() (string, <-chan datatypes.Event) {
	ch := make(chan datatypes.Event, subscriberBuffer)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored, so a handler may unsubscribe unconditionally on exit.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers ev to every active subscriber without blocking.
// When a subscriber's buffer is full, its oldest event is evicted so
// the newest is always retained.
func (b *Bus) Publish(ev datatypes.Event) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordEvent(string(ev.Type))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Full buffer. Evict the oldest, then retry once; the
			// lock serializes publishers so the retry cannot race.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
