package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collector() (*SubscriberFunc, *[]Event, func() []Event) {
	var mu sync.Mutex
	var got []Event
	fn := SubscriberFunc(func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})
	snapshot := func() []Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Event, len(got))
		copy(out, got)
		return out
	}
	return &fn, &got, snapshot
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	fn, _, snapshot := collector()
	sub := bus.Subscribe(context.Background(), *fn, 16)
	defer sub.Close()

	bus.Publish(NewSessionStarted("sess-1", "what is go"))

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, KindSessionStarted, snapshot()[0].envelope().Kind)
}

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	bus := New()
	fn, _, snapshot := collector()
	sub := bus.Subscribe(context.Background(), *fn, 16)
	defer sub.Close()

	bus.Publish(NewSessionStarted("s", "a"))
	bus.Publish(NewSessionStarted("s", "b"))

	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
	evs := snapshot()
	assert.Less(t, evs[0].envelope().Seq, evs[1].envelope().Seq)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := New()
	fn, _, _ := collector()
	sub := bus.Subscribe(context.Background(), *fn, 16)
	assert.NotPanics(t, func() {
		sub.Close()
		sub.Close()
	})
}

func TestSlowSubscriberGetsCoalescedDropped(t *testing.T) {
	bus := New()
	block := make(chan struct{})
	var mu sync.Mutex
	var kinds []Kind
	fn := SubscriberFunc(func(_ context.Context, ev Event) {
		<-block
		mu.Lock()
		kinds = append(kinds, ev.envelope().Kind)
		mu.Unlock()
	})
	sub := bus.Subscribe(context.Background(), fn, 1)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(NewSessionStarted("s", "q"))
	}
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range kinds {
			if k == KindDropped {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestPublishDoesNotBlockOnFullQueue(t *testing.T) {
	bus := New()
	fn := SubscriberFunc(func(_ context.Context, _ Event) {
		time.Sleep(time.Hour)
	})
	sub := bus.Subscribe(context.Background(), fn, 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(NewSessionStarted("s", "q"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}
}
