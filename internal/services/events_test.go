package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(nil)
	first, unsubFirst := b.Subscribe(4)
	second, unsubSecond := b.Subscribe(4)
	defer unsubSecond()

	b.Publish(Event{Kind: EventTransactionAdded, Version: 1})
	assert.Equal(t, uint64(1), (<-first).Version)
	assert.Equal(t, uint64(1), (<-second).Version)

	unsubFirst()
	unsubFirst()
	_, open := <-first
	assert.False(t, open, "unsubscribe closes the channel")

	b.Publish(Event{Kind: EventTransactionDeleted, Version: 2})
	assert.Equal(t, EventTransactionDeleted, (<-second).Kind)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(nil)
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Version: 1})
	b.Publish(Event{Version: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, uint64(1), (<-ch).Version)
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker(nil)
	ch, unsub := b.Subscribe(0)
	b.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open, "subscribing after Close yields a closed channel")

	b.Publish(Event{Version: 3})
}
