package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
)

type ChunkCompletedEvent struct {
	SessionID uuid.UUID
	Index     int
}

func (ChunkCompletedEvent) Event() {}

type JobFinishedEvent struct {
	SessionID uuid.UUID
	Status    string
}

func (JobFinishedEvent) Event() {}

func TestBusPublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	done := make(chan struct{})
	sub := event.Subscribe(bus, func(ctx context.Context, e ChunkCompletedEvent) {
		close(done)
	}, nil)
	defer sub.Unsubscribe()

	event.Publish(bus, ChunkCompletedEvent{SessionID: uuid.New(), Index: 0})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("expected event to be received")
	}
}

func TestBusFilter(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	wanted := uuid.New()
	other := uuid.New()

	got := make(chan ChunkCompletedEvent, 4)
	sub := event.Subscribe(bus, func(ctx context.Context, e ChunkCompletedEvent) {
		got <- e
	}, func(e ChunkCompletedEvent) bool {
		return e.SessionID == wanted
	})
	defer sub.Unsubscribe()

	event.Publish(bus, ChunkCompletedEvent{SessionID: other, Index: 1})
	event.Publish(bus, ChunkCompletedEvent{SessionID: wanted, Index: 2})

	select {
	case e := <-got:
		if e.SessionID != wanted || e.Index != 2 {
			t.Errorf("filtered subscriber got wrong event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("expected filtered event to be received")
	}

	select {
	case e := <-got:
		t.Errorf("unexpected second event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusTypeIsolation(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	chunkCh := make(chan struct{}, 1)
	sub := event.Subscribe(bus, func(ctx context.Context, e ChunkCompletedEvent) {
		chunkCh <- struct{}{}
	}, nil)
	defer sub.Unsubscribe()

	event.Publish(bus, JobFinishedEvent{SessionID: uuid.New(), Status: "completed"})

	select {
	case <-chunkCh:
		t.Error("subscriber received event of a different type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeChannelPreservesPublishOrder(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	id := uuid.New()
	ch, sub := event.SubscribeChannel(bus, 16, func(e ChunkCompletedEvent) bool {
		return e.SessionID == id
	})
	defer sub.Unsubscribe()

	const n = 2000
	for i := range n {
		event.Publish(bus, ChunkCompletedEvent{SessionID: id, Index: i})
	}

	for want := range n {
		select {
		case e := <-ch:
			if e.Index != want {
				t.Fatalf("event %d arrived in position %d: delivery reordered", e.Index, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", want, n)
		}
	}
}

func TestSubscribeChannelNeverDropsForSlowConsumer(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	id := uuid.New()
	ch, sub := event.SubscribeChannel(bus, 1, func(e ChunkCompletedEvent) bool {
		return e.SessionID == id
	})
	defer sub.Unsubscribe()

	// Overrun the channel buffer before reading anything. Every event,
	// including the last one, must still arrive.
	const n = 100
	for i := range n {
		event.Publish(bus, ChunkCompletedEvent{SessionID: id, Index: i})
	}

	for want := range n {
		select {
		case e := <-ch:
			if e.Index != want {
				t.Fatalf("got event %d, want %d", e.Index, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d never delivered", want)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	ch, sub := event.SubscribeChannel[ChunkCompletedEvent](bus, 1, nil)
	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after Unsubscribe")
	}

	if n := event.SubscriberCount[ChunkCompletedEvent](bus); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)

	var mu sync.Mutex
	received := 0
	sub := event.Subscribe(bus, func(ctx context.Context, e ChunkCompletedEvent) {
		mu.Lock()
		received++
		mu.Unlock()
	}, nil)
	defer sub.Unsubscribe()

	bus.Close()
	if !bus.IsClosed() {
		t.Fatal("bus not closed")
	}

	event.Publish(bus, ChunkCompletedEvent{SessionID: uuid.New()})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if received != 0 {
		t.Errorf("received %d events after Close", received)
	}
}

func TestHandlerPanicDoesNotKillBus(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	sub1 := event.Subscribe(bus, func(ctx context.Context, e ChunkCompletedEvent) {
		panic("handler bug")
	}, nil)
	defer sub1.Unsubscribe()

	done := make(chan struct{})
	sub2 := event.Subscribe(bus, func(ctx context.Context, e JobFinishedEvent) {
		close(done)
	}, nil)
	defer sub2.Unsubscribe()

	event.Publish(bus, ChunkCompletedEvent{SessionID: uuid.New()})
	event.Publish(bus, JobFinishedEvent{SessionID: uuid.New(), Status: "completed"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("bus stopped delivering after a handler panic")
	}
}
