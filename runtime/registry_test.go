package runtime

import (
	"fmt"
	"sync"
	"testing"

	"chat-relay/contract"
	"chat-relay/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeChannel records every frame pushed to it. Shared by the runtime
// package tests.
type fakeChannel struct {
	mu     sync.Mutex
	frames []domain.Frame
	closes []int
}

func (c *fakeChannel) Push(f domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeChannel) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, code)
}

func (c *fakeChannel) pushed() []domain.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Frame(nil), c.frames...)
}

func (c *fakeChannel) ofType(t domain.FrameType) []domain.Frame {
	var out []domain.Frame
	for _, f := range c.pushed() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeChannel) closedWith() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.closes...)
}

func Test_Registry_One_User_One_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	ch := &fakeChannel{}

	// Given nobody is connected
	req.Empty(registry.OnlineIDs())

	// When a channel registers
	registry.Register(userID, ch)

	// Then the user is online on exactly that channel
	req.Equal([]string{userID}, registry.OnlineIDs())
	req.Len(registry.ChannelsFor(userID), 1)
}

func Test_Registry_Multiple_Devices_Same_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	phone := &fakeChannel{}
	laptop := &fakeChannel{}

	registry.Register(userID, phone)
	registry.Register(userID, laptop)

	// One identity, two channels
	req.Len(registry.OnlineIDs(), 1)
	req.Len(registry.ChannelsFor(userID), 2)

	// Registering the same channel twice changes nothing
	registry.Register(userID, phone)
	req.Len(registry.ChannelsFor(userID), 2)
}

func Test_Registry_Offline_After_Last_Channel_Leaves(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	phone := &fakeChannel{}
	laptop := &fakeChannel{}

	registry.Register(userID, phone)
	registry.Register(userID, laptop)

	// Still online while one channel remains
	registry.Deregister(userID, phone)
	req.Equal([]string{userID}, registry.OnlineIDs())

	// Offline once the last channel leaves
	registry.Deregister(userID, laptop)
	req.Empty(registry.OnlineIDs())
	req.Empty(registry.ChannelsFor(userID))
}

func Test_Registry_Notifies_On_Every_Mutation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	ch := &fakeChannel{}

	var broadcasts [][]string
	registry.OnChange(func(online []string, _ []contract.Channel) {
		broadcasts = append(broadcasts, online)
	})

	registry.Register(userID, ch)
	registry.Deregister(userID, ch)
	// Deregistering an unknown channel still broadcasts, one per close
	registry.Deregister(userID, ch)

	req.Len(broadcasts, 3)
	req.Equal([]string{userID}, broadcasts[0])
	req.Empty(broadcasts[1])
	req.Empty(broadcasts[2])
}

func Test_Registry_AllChannels_Spans_Users(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", &fakeChannel{})
	registry.Register("bob", &fakeChannel{})
	registry.Register("bob", &fakeChannel{})

	req.Len(registry.AllChannels(), 3)
}

func Test_Registry_Snapshots_Arrive_In_Mutation_Order(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// The hook runs while the registry is serialized, so the recorded
	// slice needs no locking of its own.
	var sizes []int
	registry.OnChange(func(online []string, _ []contract.Channel) {
		sizes = append(sizes, len(online))
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			registry.Register(fmt.Sprintf("user-%d", n), &fakeChannel{})
		}(i)
	}
	wg.Wait()

	// Concurrent registrations of distinct users must produce strictly
	// growing snapshots; a repeated or shrunk size means a stale set was
	// broadcast after a newer one.
	req.Len(sizes, 20)
	for i, size := range sizes {
		req.Equal(i+1, size)
	}
}

func Test_Registry_CloseAll_Reaches_Every_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	alice := &fakeChannel{}
	bobPhone := &fakeChannel{}
	bobLaptop := &fakeChannel{}
	registry.Register("alice", alice)
	registry.Register("bob", bobPhone)
	registry.Register("bob", bobLaptop)

	registry.CloseAll(1001, "server shutting down")

	for _, ch := range []*fakeChannel{alice, bobPhone, bobLaptop} {
		req.Equal([]int{1001}, ch.closedWith())
	}
}
