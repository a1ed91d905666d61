package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidMessage rejects rows that would violate the stored-message
// invariants. The session validates first; this is defense in depth.
var ErrInvalidMessage = errors.New("invalid chat message")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveMessage appends one message and returns the store-assigned id and
// timestamp. Both come from the same INSERT, so they are atomic with
// the write.
func (r *Repository) SaveMessage(ctx context.Context, msg *Message) (int64, time.Time, error) {
	content := strings.TrimSpace(msg.Content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLen {
		return 0, time.Time{}, fmt.Errorf("%w: bad content length", ErrInvalidMessage)
	}
	if msg.SenderID == msg.RecipientID {
		return 0, time.Time{}, fmt.Errorf("%w: sender equals recipient", ErrInvalidMessage)
	}

	var id int64
	var sentAt time.Time
	query := `INSERT INTO chat_messages (sender_id, recipient_id, product_id, content)
              VALUES ($1, $2, $3, $4) RETURNING id, sent_at`

	err := r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.RecipientID, msg.ProductID, content,
	).Scan(&id, &sentAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, sentAt, nil
}

// ListForProduct returns one page of a product's history, newest page
// first but ordered oldest-first within the page so clients can append.
func (r *Repository) ListForProduct(ctx context.Context, productID string, limit, offset int) ([]HistoryMessage, error) {
	query := `
		SELECT s.username, t.username, m.content, m.sent_at
		FROM chat_messages m
		JOIN users s ON m.sender_id = s.id
		JOIN users t ON m.recipient_id = t.id
		WHERE m.product_id = $1
		ORDER BY m.id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []HistoryMessage
	for rows.Next() {
		var m HistoryMessage
		if err := rows.Scan(&m.Sender, &m.Recipient, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order within the page.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *Repository) CountForProduct(ctx context.Context, productID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE product_id = $1`, productID,
	).Scan(&count)
	return count, err
}
