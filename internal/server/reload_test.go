package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloadHubBroadcast(t *testing.T) {
	hub := NewReloadHub(testLogger(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sub := &subscriber{send: make(chan []byte, 16)}
	hub.register <- sub

	// Registration and broadcast travel over separate buffered channels,
	// so keep broadcasting until a delivery proves the subscriber landed.
	var got []byte
	require.Eventually(t, func() bool {
		hub.Broadcast(ReloadEvent{Type: "reload", Path: "content/hello.md"})
		select {
		case msg := <-sub.send:
			got = msg
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"reload","path":"content/hello.md"}`, string(got))

	hub.unregister <- sub
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.send:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "unregister closes the send channel")
}

func TestReloadHubDropsSlowSubscriber(t *testing.T) {
	hub := NewReloadHub(testLogger(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sub := &subscriber{send: make(chan []byte, 1)}
	hub.register <- sub

	// Never drain: once one event sits in the buffer, the next delivery
	// attempt evicts the subscriber and closes its channel.
	require.Eventually(t, func() bool {
		hub.Broadcast(ReloadEvent{Type: "reload"})
		hub.Broadcast(ReloadEvent{Type: "reload"})
		select {
		case _, ok := <-sub.send:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "slow subscriber is closed, not blocked on")
}
