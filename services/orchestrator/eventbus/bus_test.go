// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eventbus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

func TestFanOut(t *testing.T) {
	b := NewBus()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish(datatypes.Event{Type: datatypes.EventCallStatus, Data: map[string]any{"status": "ringing"}})

	for i, ch := range []<-chan datatypes.Event{ch1, ch2} {
		ev := <-ch
		if ev.Type != datatypes.EventCallStatus {
			t.Errorf("subscriber %d got type %q", i, ev.Type)
		}
	}
}

func TestPerSubscriberOrdering(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	const n = 20
	for i := 0; i < n; i++ {
		b.Publish(datatypes.Event{Type: datatypes.EventTranscript, Data: map[string]any{"seq": i}})
	}
	for i := 0; i < n; i++ {
		ev := <-ch
		if got := ev.Data["seq"].(int); got != i {
			t.Fatalf("event %d arrived at position %d", got, i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Nothing reads ch. Publishing far past the buffer must still
	// return, evicting the oldest events.
	total := subscriberBuffer * 3
	for i := 0; i < total; i++ {
		b.Publish(datatypes.Event{Type: datatypes.EventTranscript, Data: map[string]any{"seq": i}})
	}

	// The newest event is always retained.
	var last int
	for {
		select {
		case ev := <-ch:
			last = ev.Data["seq"].(int)
		default:
			if last != total-1 {
				t.Errorf("newest buffered seq = %d, want %d", last, total-1)
			}
			return
		}
	}
}

func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	b := NewBus()
	slowID, _ := b.Subscribe()
	fastID, fast := b.Subscribe()
	defer b.Unsubscribe(slowID)
	defer b.Unsubscribe(fastID)

	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish(datatypes.Event{Type: datatypes.EventEmotion, Data: map[string]any{"seq": i}})
	}

	// The fast subscriber drains concurrently with nobody reading the
	// slow one; it must still have events waiting.
	ev := <-fast
	if ev.Type != datatypes.EventEmotion {
		t.Errorf("got type %q", ev.Type)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()

	b.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Errorf("channel still open after Unsubscribe")
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}

	// Idempotent.
	b.Unsubscribe(id)
	b.Unsubscribe("no-such-id")
}

func TestConcurrentPublishers(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(datatypes.Event{Type: datatypes.EventToolCall, Data: map[string]any{"worker": fmt.Sprint(i)}})
		}(i)
	}
	wg.Wait()

	got := 0
	for {
		select {
		case <-ch:
			got++
		default:
			if got != 10 {
				t.Errorf("delivered %d events, want 10", got)
			}
			return
		}
	}
}
