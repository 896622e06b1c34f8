package shmif

import (
	"testing"
	"time"

	"github.com/aleph-shmif/shmif/event"
)

func TestEnqueueBlocksUntilRingDrains(t *testing.T) {
	ep := newTestEndpoint(t)
	ring := &ep.Mapping.Page.ParentEVQ
	for !ring.Full() {
		ring.Push(targetEvent(event.TargetStepFrame))
	}

	done := make(chan struct{})
	go func() {
		ep.Enqueue(event.Event{Category: event.CategoryExternal})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enqueue should block while the ring is full and there's no semaphore to wake it")
	case <-time.After(100 * time.Millisecond):
	}

	ring.Pop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue never returned after the ring drained")
	}
}

func TestTryEnqueueFailsFastWhenFull(t *testing.T) {
	ep := newTestEndpoint(t)
	ring := &ep.Mapping.Page.ParentEVQ
	for !ring.Full() {
		ring.Push(targetEvent(event.TargetStepFrame))
	}

	ok, err := ep.TryEnqueue(event.Event{Category: event.CategoryExternal})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("TryEnqueue should fail immediately on a full ring")
	}
}

func TestTryEnqueueFailsFastWhenPaused(t *testing.T) {
	ep := newTestEndpoint(t)
	ep.paused.Store(true)

	ok, err := ep.TryEnqueue(event.Event{Category: event.CategoryExternal})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("TryEnqueue should fail immediately while paused")
	}
}

func TestEnqueueWhilePausedDrainsFirst(t *testing.T) {
	ep := newTestEndpoint(t)
	ep.paused.Store(true)
	ep.Mapping.Page.ChildEVQ.Push(targetEvent(event.TargetUnpause))

	ok, err := ep.Enqueue(event.Event{Category: event.CategoryExternal})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the enqueue to succeed once UNPAUSE is processed")
	}
	if ep.Paused() {
		t.Fatal("expected UNPAUSE to clear the paused flag before publishing")
	}
}
