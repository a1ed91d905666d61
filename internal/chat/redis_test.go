package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	mu    sync.Mutex
	calls []string // "sub:<channel>" / "unsub:<channel>"
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		f.calls = append(f.calls, "sub:"+ch)
	}
	return nil
}

func (f *fakeSubscriber) Unsubscribe(ctx context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		f.calls = append(f.calls, "unsub:"+ch)
	}
	return nil
}

func (f *fakeSubscriber) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestRedisRegistry() (*RedisRegistry, *fakeSubscriber) {
	subs := &fakeSubscriber{}
	r := &RedisRegistry{
		local: NewLocalRegistry(zap.NewNop().Sugar()),
		subs:  subs,
		log:   zap.NewNop().Sugar(),
	}
	return r, subs
}

func TestRedisRegistrySubscribesOnFirstJoinOnly(t *testing.T) {
	r, subs := newTestRedisRegistry()
	a, b := &fakeMember{}, &fakeMember{}

	r.Join("g1", a)
	r.Join("g1", b)

	assert.Equal(t, []string{"sub:g1"}, subs.snapshot())
}

func TestRedisRegistryUnsubscribesOnLastLeaveOnly(t *testing.T) {
	r, subs := newTestRedisRegistry()
	a, b := &fakeMember{}, &fakeMember{}
	r.Join("g1", a)
	r.Join("g1", b)

	r.Leave("g1", a)
	assert.Equal(t, []string{"sub:g1"}, subs.snapshot())

	r.Leave("g1", b)
	assert.Equal(t, []string{"sub:g1", "unsub:g1"}, subs.snapshot())
}

// Subscription transitions must stay consistent with membership under
// concurrent join/leave churn: a stale unsubscribe must never land
// after a fresh member's subscribe.
func TestRedisRegistrySubscriptionConsistentUnderChurn(t *testing.T) {
	r, subs := newTestRedisRegistry()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		key := fmt.Sprintf("group-%d", g)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					m := &fakeMember{}
					r.Join(key, m)
					r.Leave(key, m)
				}
			}()
		}
	}
	wg.Wait()

	// Per channel: calls strictly alternate sub/unsub, start with a
	// subscribe, and end unsubscribed once every member has left.
	perChannel := map[string][]string{}
	for _, call := range subs.snapshot() {
		if ch, ok := strings.CutPrefix(call, "unsub:"); ok {
			perChannel[ch] = append(perChannel[ch], "unsub")
		} else if ch, ok := strings.CutPrefix(call, "sub:"); ok {
			perChannel[ch] = append(perChannel[ch], "sub")
		}
	}

	require.Len(t, perChannel, 4)
	for ch, kinds := range perChannel {
		for i, kind := range kinds {
			if i%2 == 0 {
				assert.Equal(t, "sub", kind, "channel %s call %d", ch, i)
			} else {
				assert.Equal(t, "unsub", kind, "channel %s call %d", ch, i)
			}
		}
		assert.Equal(t, "unsub", kinds[len(kinds)-1], "channel %s must end unsubscribed", ch)
	}
}

func TestRedisRegistryDispatchFansOutLocally(t *testing.T) {
	r, _ := newTestRedisRegistry()
	a := &fakeMember{}
	r.Join("g1", a)

	payload, err := json.Marshal(testEvent("via redis"))
	require.NoError(t, err)
	r.dispatch("g1", payload)

	frames := a.received(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "via redis", frames[0].Message)
}

func TestRedisRegistryDispatchDropsMalformedPayload(t *testing.T) {
	r, _ := newTestRedisRegistry()
	a := &fakeMember{}
	r.Join("g1", a)

	r.dispatch("g1", []byte("{not json"))

	assert.Empty(t, a.received(t))
}
