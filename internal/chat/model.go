package chat

import "time"

// maxMessageLen is the post-trim limit counted in runes, matching the
// stored-content constraint.
const maxMessageLen = 1000

// timeLayout is a fixed-width UTC layout so frame timestamps sort
// lexicographically. RFC3339Nano trims trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ---------------------------------------------
// Durable model
// ---------------------------------------------

// Message is the stored chat message. ID and SentAt are assigned by the
// store at persistence time, never by the client.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int       `json:"sender_id"`
	RecipientID int       `json:"recipient_id"`
	ProductID   string    `json:"product_id"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sent_at"`
}

// HistoryMessage is the read-path shape served by the history endpoint.
type HistoryMessage struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ---------------------------------------------
// Wire frames
// ---------------------------------------------

// inboundFrame is what the client SENDS us. Recipient is only consulted
// when the sender is the product's seller.
type inboundFrame struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// ackFrame confirms durability to the original sender only.
type ackFrame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Timestamp string `json:"timestamp"`
}

// GroupEvent is the internal broadcast envelope routed through the
// registry (and Redis, in multi-instance mode). It is never sent to the
// wire as-is: each member receives wireFrame().
type GroupEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Datetime  string `json:"datetime"`
	MessageID *int64 `json:"message_id"`
}

// deliveredFrame is the fan-out frame a group member receives. The
// message id is deliberately elided: only the sender learns it, via the
// direct ack.
type deliveredFrame struct {
	Message  string `json:"message"`
	Sender   string `json:"sender"`
	Datetime string `json:"datetime"`
}

func (e GroupEvent) wireFrame() deliveredFrame {
	return deliveredFrame{
		Message:  e.Message,
		Sender:   e.Sender,
		Datetime: e.Datetime,
	}
}
