package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	frames []any
}

func (f *fakeSender) sendDirect(v any) {
	f.frames = append(f.frames, v)
}

func (f *fakeSender) lastError(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.frames)
	ef, ok := f.frames[len(f.frames)-1].(errorFrame)
	require.True(t, ok, "last frame is not an error frame: %#v", f.frames[len(f.frames)-1])
	return ef.Error
}

type fakeBroadcaster struct {
	keys   []string
	events []GroupEvent
}

func (f *fakeBroadcaster) Join(groupKey string, m Member)  {}
func (f *fakeBroadcaster) Leave(groupKey string, m Member) {}
func (f *fakeBroadcaster) Broadcast(ctx context.Context, groupKey string, event GroupEvent) {
	f.keys = append(f.keys, groupKey)
	f.events = append(f.events, event)
}

type fakeStore struct {
	saved  []*Message
	nextID int64
	err    error
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *Message) (int64, time.Time, error) {
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	f.saved = append(f.saved, msg)
	f.nextID++
	return f.nextID, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), nil
}

type fakeResolver struct {
	users map[string]int
}

func (f *fakeResolver) ResolveUsername(ctx context.Context, username string) (int, string, error) {
	if id, ok := f.users[username]; ok {
		return id, username, nil
	}
	return 0, "", errors.New("user not found")
}

const testProductID = "0b6e6c0e-6c2f-4a53-9f7e-13a6f6f0a001"

type sessionHarness struct {
	session  *Session
	out      *fakeSender
	registry *fakeBroadcaster
	store    *fakeStore
}

// newHarness builds a session for product owned by seller (id 1,
// "seller"). The connecting principal is configurable.
func newHarness(p Principal) *sessionHarness {
	out := &fakeSender{}
	registry := &fakeBroadcaster{}
	store := &fakeStore{}
	resolver := &fakeResolver{users: map[string]int{"seller": 1, "buyer": 2}}
	product := ProductContext{ID: testProductID, SellerID: 1, SellerUsername: "seller"}

	return &sessionHarness{
		session:  NewSession(p, product, registry, store, resolver, out, zap.NewNop().Sugar()),
		out:      out,
		registry: registry,
		store:    store,
	}
}

func buyerHarness() *sessionHarness {
	return newHarness(Principal{ID: 2, Username: "buyer"})
}

func sellerHarness() *sessionHarness {
	return newHarness(Principal{ID: 1, Username: "seller"})
}

func TestHandleFrameInvalidJSON(t *testing.T) {
	h := buyerHarness()
	h.session.HandleFrame(context.Background(), []byte("{not json"))

	assert.Equal(t, "Invalid JSON format", h.out.lastError(t))
	assert.Empty(t, h.registry.events)
	assert.Empty(t, h.store.saved)
}

func TestHandleFrameEmptyMessage(t *testing.T) {
	h := buyerHarness()
	for _, raw := range []string{`{}`, `{"message":""}`, `{"message":"   \n\t "}`} {
		h.session.HandleFrame(context.Background(), []byte(raw))
		assert.Equal(t, "Message content is required", h.out.lastError(t))
	}
	assert.Empty(t, h.registry.events)
	assert.Empty(t, h.store.saved)
}

func TestHandleFrameMessageTooLong(t *testing.T) {
	h := buyerHarness()
	long := strings.Repeat("a", 1001)
	h.session.HandleFrame(context.Background(), []byte(`{"message":"`+long+`"}`))

	assert.Equal(t, "Message too long. Maximum 1000 characters allowed.", h.out.lastError(t))
	assert.Empty(t, h.registry.events)
	assert.Empty(t, h.store.saved)
}

func TestHandleFrameLimitCountsRunes(t *testing.T) {
	// 1000 multibyte characters are within the limit.
	h := buyerHarness()
	msg := strings.Repeat("é", 1000)
	h.session.HandleFrame(context.Background(), []byte(`{"message":"`+msg+`"}`))

	require.Len(t, h.store.saved, 1)
	assert.Equal(t, msg, h.store.saved[0].Content)
}

func TestMaxFrameSizeAdmitsWorstCaseEscapedMessage(t *testing.T) {
	// 1000 runes sent as surrogate-pair escapes is the largest frame a
	// valid message can occupy; it must fit under the read limit and
	// pass validation as exactly 1000 characters.
	raw := `{"message":"` + strings.Repeat(`\ud83d\ude00`, 1000) + `"}`
	require.Less(t, len(raw), maxFrameSize)

	h := buyerHarness()
	h.session.HandleFrame(context.Background(), []byte(raw))

	require.Len(t, h.store.saved, 1)
	assert.Equal(t, 1000, utf8.RuneCountInString(h.store.saved[0].Content))
}

func TestHandleFrameBuyerRecipientIsSeller(t *testing.T) {
	h := buyerHarness()
	h.session.HandleFrame(context.Background(), []byte(`{"message":"  hi  "}`))

	// Broadcast carries the trimmed content and sender's username,
	// with no message id in the fan-out.
	require.Len(t, h.registry.events, 1)
	ev := h.registry.events[0]
	assert.Equal(t, "chat_message", ev.Type)
	assert.Equal(t, "hi", ev.Message)
	assert.Equal(t, "buyer", ev.Sender)
	assert.Nil(t, ev.MessageID)

	// Group key matches the derived room identity.
	_, wantGroup := h.session.Keys()
	assert.Equal(t, []string{wantGroup}, h.registry.keys)

	// Persisted with the seller resolved as recipient, no client input.
	require.Len(t, h.store.saved, 1)
	saved := h.store.saved[0]
	assert.Equal(t, 2, saved.SenderID)
	assert.Equal(t, 1, saved.RecipientID)
	assert.Equal(t, testProductID, saved.ProductID)
	assert.Equal(t, "hi", saved.Content)

	// Exactly one direct ack with the store-assigned id.
	require.Len(t, h.out.frames, 1)
	ack, ok := h.out.frames[0].(ackFrame)
	require.True(t, ok)
	assert.Equal(t, "message_sent", ack.Type)
	assert.Equal(t, int64(1), ack.MessageID)
	assert.Equal(t, "2026-08-29T12:00:00.000000Z", ack.Timestamp)
}

func TestHandleFrameSellerRequiresRecipient(t *testing.T) {
	h := sellerHarness()
	h.session.HandleFrame(context.Background(), []byte(`{"message":"hello"}`))

	assert.Equal(t, "Recipient username is required when seller sends message", h.out.lastError(t))
	assert.Empty(t, h.registry.events, "no broadcast may reach the buyer")
	assert.Empty(t, h.store.saved)
}

func TestHandleFrameSellerUnknownRecipient(t *testing.T) {
	h := sellerHarness()
	h.session.HandleFrame(context.Background(), []byte(`{"message":"hello","recipient":"ghost"}`))

	assert.Equal(t, "Recipient user not found", h.out.lastError(t))
	assert.Empty(t, h.registry.events)
	assert.Empty(t, h.store.saved)
}

func TestHandleFrameSellerWithRecipient(t *testing.T) {
	h := sellerHarness()
	h.session.HandleFrame(context.Background(), []byte(`{"message":"hello","recipient":"buyer"}`))

	require.Len(t, h.registry.events, 1)
	assert.Equal(t, "seller", h.registry.events[0].Sender)

	require.Len(t, h.store.saved, 1)
	assert.Equal(t, 1, h.store.saved[0].SenderID)
	assert.Equal(t, 2, h.store.saved[0].RecipientID)
}

func TestHandleFramePersistenceFailure(t *testing.T) {
	h := buyerHarness()
	h.store.err = errors.New("db down")

	h.session.HandleFrame(context.Background(), []byte(`{"message":"hi"}`))

	// The optimistic broadcast already went out and is not retracted.
	assert.Len(t, h.registry.events, 1)

	// The sender gets the failure frame and never an ack.
	require.Len(t, h.out.frames, 1)
	assert.Equal(t, "Failed to save message. Please try again.", h.out.lastError(t))
	for _, f := range h.out.frames {
		_, isAck := f.(ackFrame)
		assert.False(t, isAck)
	}
}

func TestSessionKeysUseSortedParticipants(t *testing.T) {
	buyer := buyerHarness()

	room, group := buyer.session.Keys()
	assert.Equal(t, "chat_product_"+testProductID+"_users_1_2", room)
	assert.Equal(t, "chat_"+room, group)
}
