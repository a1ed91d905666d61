package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Principal is the authenticated identity behind a connection.
type Principal struct {
	ID       int
	Username string
}

// ProductContext is the product a room is scoped to, resolved once at
// handshake time.
type ProductContext struct {
	ID             string
	SellerID       int
	SellerUsername string
}

// MessageStore persists accepted messages. SaveMessage assigns the id
// and server timestamp atomically with the write.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) (int64, time.Time, error)
}

// RecipientResolver maps a public username to an identity. Used only
// when the seller names the counterpart.
type RecipientResolver interface {
	ResolveUsername(ctx context.Context, username string) (int, string, error)
}

// directSender delivers a frame to the originating connection only,
// outside the broadcast path.
type directSender interface {
	sendDirect(v any)
}

// Session is the per-connection protocol state. One Session is owned by
// exactly one connection, and HandleFrame is only ever called from that
// connection's read loop, so frame processing is fully serialized.
type Session struct {
	user     Principal
	product  ProductContext
	roomKey  string
	groupKey string

	registry Registry
	store    MessageStore
	users    RecipientResolver
	out      directSender

	now func() time.Time
	log *zap.SugaredLogger
}

func NewSession(
	user Principal,
	product ProductContext,
	registry Registry,
	store MessageStore,
	users RecipientResolver,
	out directSender,
	log *zap.SugaredLogger,
) *Session {
	roomKey := RoomKey(product.ID, user.ID, product.SellerID)
	return &Session{
		user:     user,
		product:  product,
		roomKey:  roomKey,
		groupKey: GroupKey(roomKey),
		registry: registry,
		store:    store,
		users:    users,
		out:      out,
		now:      time.Now,
		log:      log,
	}
}

// HandleFrame runs one inbound frame through the protocol:
// parse, validate, resolve the recipient, broadcast, then persist.
//
// The broadcast is optimistic: it goes out before the store write so
// connected members see the message with minimal latency. If the write
// then fails, only the sender is told and the broadcast is not
// retracted. Validation failures keep the connection open; the client
// may resubmit.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.out.sendDirect(errorFrame{Error: "Invalid JSON format"})
		return
	}

	content := strings.TrimSpace(frame.Message)
	if content == "" {
		s.out.sendDirect(errorFrame{Error: "Message content is required"})
		return
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		s.out.sendDirect(errorFrame{Error: "Message too long. Maximum 1000 characters allowed."})
		return
	}

	recipientID, ok := s.resolveRecipient(ctx, frame.Recipient)
	if !ok {
		return
	}

	s.registry.Broadcast(ctx, s.groupKey, GroupEvent{
		Type:      "chat_message",
		Message:   content,
		Sender:    s.user.Username,
		Datetime:  s.now().UTC().Format(timeLayout),
		MessageID: nil, // assigned by the store after this fan-out
	})

	id, sentAt, err := s.store.SaveMessage(ctx, &Message{
		SenderID:    s.user.ID,
		RecipientID: recipientID,
		ProductID:   s.product.ID,
		Content:     content,
	})
	if err != nil {
		s.log.Warnw("message save failed", "room", s.roomKey, "sender", s.user.ID, "err", err)
		s.out.sendDirect(errorFrame{Error: "Failed to save message. Please try again."})
		return
	}

	s.out.sendDirect(ackFrame{
		Type:      "message_sent",
		MessageID: id,
		Timestamp: sentAt.UTC().Format(timeLayout),
	})
}

// resolveRecipient picks the counterpart. A buyer always talks to the
// seller; a seller must name the buyer by username.
func (s *Session) resolveRecipient(ctx context.Context, recipient string) (int, bool) {
	if s.user.ID != s.product.SellerID {
		return s.product.SellerID, true
	}

	if recipient == "" {
		s.out.sendDirect(errorFrame{Error: "Recipient username is required when seller sends message"})
		return 0, false
	}
	id, _, err := s.users.ResolveUsername(ctx, recipient)
	if err != nil {
		s.out.sendDirect(errorFrame{Error: "Recipient user not found"})
		return 0, false
	}
	return id, true
}

// Keys exposes the derived room and group keys.
func (s *Session) Keys() (roomKey, groupKey string) {
	return s.roomKey, s.groupKey
}
