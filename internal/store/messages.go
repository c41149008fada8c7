package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/genai"
)

// LogMessage appends an inbound message to the message log.
func (s *Store) LogMessage(ctx context.Context, rec comms.MessageRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, group_id, route, body, media_kind, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ChatID, rec.SenderID, rec.GroupID, rec.Route, rec.Text, string(rec.MediaKind), millis(rec.At))
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

// RecentMessages returns the latest logged messages of a chat, oldest first.
func (s *Store) RecentMessages(ctx context.Context, chatID string, limit int) ([]comms.MessageRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, group_id, route, body, media_kind, at
		FROM messages WHERE chat_id = ?
		ORDER BY seq DESC LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []comms.MessageRecord
	for rows.Next() {
		var (
			rec       comms.MessageRecord
			mediaKind string
			at        int64
		)
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SenderID, &rec.GroupID, &rec.Route, &rec.Text, &mediaKind, &at); err != nil {
			return nil, err
		}
		rec.MediaKind = comms.MediaKind(mediaKind)
		rec.At = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// AppendHistory implements chat.HistoryStore.
func (s *Store) AppendHistory(ctx context.Context, chatID string, turns []genai.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := millis(s.clock.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range turns {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_history (chat_id, role, body, created_at) VALUES (?, ?, ?, ?)`,
				chatID, string(t.Role), t.Text, now); err != nil {
				return fmt.Errorf("failed to append history: %w", err)
			}
		}
		return nil
	})
}

// RecentHistory implements chat.HistoryStore.
func (s *Store) RecentHistory(ctx context.Context, chatID string, limit int) ([]genai.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, body FROM chat_history
		WHERE chat_id = ?
		ORDER BY seq DESC LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []genai.Message
	for rows.Next() {
		var role, body string
		if err := rows.Scan(&role, &body); err != nil {
			return nil, err
		}
		out = append(out, genai.Message{Role: genai.Role(role), Text: body})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// PruneHistory deletes history turns and logged messages older than
// maxAge and reports how many rows were removed.
func (s *Store) PruneHistory(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cutoff := millis(s.clock.Now().Add(-maxAge))
	total := 0
	for _, q := range []string{
		`DELETE FROM chat_history WHERE created_at < ?`,
		`DELETE FROM messages WHERE at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune history: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}
