package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, userID uint, buffer int) *Client {
	t.Helper()
	before := h.GetConnectedClients()
	c := &Client{UserID: userID, Send: make(chan []byte, buffer), Hub: h, rooms: make(map[uint]struct{})}
	h.register <- c
	require.Eventually(t, func() bool { return h.GetConnectedClients() == before+1 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event %s", raw)
	default:
	}
}

func TestHubSendToUserReachesEveryConnection(t *testing.T) {
	h := startHub(t)
	phone := connect(t, h, 1, 4)
	laptop := connect(t, h, 1, 4)
	other := connect(t, h, 2, 4)

	h.SendToUser(1, EventNotification, map[string]string{"title": "hi"})

	assert.Equal(t, EventNotification, receive(t, phone).Type)
	assert.Equal(t, EventNotification, receive(t, laptop).Type)
	assertNothing(t, other)
	assert.True(t, h.IsOnline(1))
	assert.False(t, h.IsOnline(3))
}

func TestHubRoomsSkipSender(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, 1, 4)
	bob := connect(t, h, 2, 4)
	carol := connect(t, h, 3, 4)

	h.Join(alice, 10)
	h.Join(bob, 10)
	assert.True(t, h.InRoom(2, 10))
	assert.False(t, h.InRoom(3, 10))

	h.SendToRoom(10, EventUserTyping, map[string]uint{"userId": 1}, 1)
	assert.Equal(t, EventUserTyping, receive(t, bob).Type)
	assertNothing(t, alice)
	assertNothing(t, carol)

	h.Leave(bob, 10)
	h.SendToRoom(10, EventNewMessage, nil, 0)
	assert.Equal(t, EventNewMessage, receive(t, alice).Type)
	assertNothing(t, bob)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := startHub(t)
	slow := connect(t, h, 1, 1)

	h.SendToUser(1, EventNotification, nil)
	h.SendToUser(1, EventNotification, nil)

	assert.False(t, h.IsOnline(1))
	_, ok := <-slow.Send
	assert.True(t, ok, "buffered event is still readable")
	_, ok = <-slow.Send
	assert.False(t, ok, "channel closed after drop")
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 1, 4)
	h.Join(c, 5)

	h.unregister <- c
	require.Eventually(t, func() bool { return !h.IsOnline(1) }, time.Second, 10*time.Millisecond)
	assert.False(t, h.InRoom(1, 5))
}

type recordingRelay struct {
	deliveries []Delivery
	err        error
}

func (r *recordingRelay) Publish(_ context.Context, d Delivery) error {
	r.deliveries = append(r.deliveries, d)
	return r.err
}

func TestHubUsesRelayWhenConfigured(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 1, 4)
	relay := &recordingRelay{}
	h.SetRelay(relay)

	h.SendToRoom(9, EventNewMessage, map[string]string{"content": "hello"}, 2)

	require.Len(t, relay.deliveries, 1)
	assert.Equal(t, uint(9), relay.deliveries[0].ChatID)
	assert.Equal(t, uint(2), relay.deliveries[0].ExceptID)
	assertNothing(t, c)

	// the subscriber hands the delivery back to the hub
	h.Join(c, 9)
	h.DeliverLocal(relay.deliveries[0])
	assert.Equal(t, EventNewMessage, receive(t, c).Type)
}

func TestHubFallsBackToLocalWhenRelayFails(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 1, 4)
	h.SetRelay(&recordingRelay{err: errors.New("redis down")})

	h.SendToUser(1, EventMatchUpdated, nil)
	assert.Equal(t, EventMatchUpdated, receive(t, c).Type)
}

// scriptedSubscriber confirms the subscriptions listed in live, holding each
// one open until drop is closed. Every other attempt fails straight away.
type scriptedSubscriber struct {
	recordingRelay
	live map[int]bool
	drop chan struct{}

	mu       sync.Mutex
	attempts int
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, ready func(), _ func(Delivery)) error {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()

	if !s.live[n] {
		return errors.New("connection refused")
	}
	ready()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.drop:
		return errors.New("subscription closed")
	}
}

func (s *scriptedSubscriber) tries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func runRelay(t *testing.T, h *Hub, s *scriptedSubscriber) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.RunRelay(ctx, s, time.Millisecond)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestHubDeliversLocallyUntilRelaySubscribes(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 1, 4)
	sub := &scriptedSubscriber{drop: make(chan struct{})}
	runRelay(t, h, sub)

	require.Eventually(t, func() bool { return sub.tries() >= 3 }, time.Second, time.Millisecond)
	assert.Nil(t, h.currentRelay())

	h.SendToUser(1, EventNotification, nil)
	assert.Equal(t, EventNotification, receive(t, c).Type)
	assert.Empty(t, sub.deliveries)
}

func TestHubDropsRelayWhenSubscriptionEnds(t *testing.T) {
	h := startHub(t)
	c := connect(t, h, 1, 4)
	sub := &scriptedSubscriber{live: map[int]bool{2: true}, drop: make(chan struct{})}
	runRelay(t, h, sub)

	require.Eventually(t, func() bool { return h.currentRelay() != nil }, time.Second, time.Millisecond)
	h.SendToUser(1, EventMatchUpdated, nil)
	assert.Len(t, sub.deliveries, 1)
	assertNothing(t, c)

	close(sub.drop)
	require.Eventually(t, func() bool { return h.currentRelay() == nil }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return sub.tries() >= 4 }, time.Second, time.Millisecond)
	assert.Nil(t, h.currentRelay())

	h.SendToUser(1, EventMatchUpdated, nil)
	assert.Equal(t, EventMatchUpdated, receive(t, c).Type)
	assert.Len(t, sub.deliveries, 1)
}
