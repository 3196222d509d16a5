package db

import (
	"context"

	"github.com/gocql/gocql"
	"github.com/mahaj/realtime-core/pkg/model"
)

// AdvanceMessageStatus moves a message's status forward, never backward.
// Returns false when the stored status is already at or past the target.
// A message with no status row is treated as "sent"; the sending API only
// writes content, the first delivered/read ack creates the row here.
func (s *Session) AdvanceMessageStatus(ctx context.Context, messageID string, to model.MessageStatus) (bool, error) {
	var cur string
	err := s.Query(`SELECT status FROM message_status WHERE message_id = ?`, messageID).
		WithContext(ctx).Scan(&cur)

	if err == gocql.ErrNotFound {
		applied, err := s.Query(`INSERT INTO message_status (message_id, status) VALUES (?, ?) IF NOT EXISTS`,
			messageID, string(to)).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil || applied {
			return applied, err
		}
		// Lost a race with another ack; re-read and fall through.
		if err := s.Query(`SELECT status FROM message_status WHERE message_id = ?`, messageID).
			WithContext(ctx).Scan(&cur); err != nil {
			return false, err
		}
	} else if err != nil {
		return false, err
	}

	current := model.MessageStatus(cur)
	if current.Rank() >= to.Rank() {
		return false, nil
	}

	// Conditional update so two concurrent acks cannot regress the status.
	return s.Query(`UPDATE message_status SET status = ? WHERE message_id = ? IF status = ?`,
		string(to), messageID, cur).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

// UpsertReadReceipt writes the (message, user) receipt. Inserts in
// Cassandra are upserts, so a repeated read leaves exactly one row.
func (s *Session) UpsertReadReceipt(ctx context.Context, r model.ReadReceipt) error {
	return s.Query(`INSERT INTO read_receipts (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		r.MessageID, r.UserID, r.ReadAt).WithContext(ctx).Exec()
}

// MessageStatus reads the stored status for reconciliation endpoints.
func (s *Session) MessageStatus(ctx context.Context, messageID string) (model.MessageStatus, error) {
	var cur string
	err := s.Query(`SELECT status FROM message_status WHERE message_id = ?`, messageID).
		WithContext(ctx).Scan(&cur)
	if err == gocql.ErrNotFound {
		return model.StatusSent, nil
	}
	if err != nil {
		return "", err
	}
	return model.MessageStatus(cur), nil
}
