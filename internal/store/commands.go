package store

import (
	"context"
	"fmt"

	"github.com/alekspetrov/turma/internal/commands"
)

// IsCommandDisabled implements commands.Disabler.
func (s *Store) IsCommandDisabled(ctx context.Context, groupID, command string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disabled_commands WHERE group_id = ? AND command = ?`,
		groupID, command).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check command: %w", err)
	}
	return n > 0, nil
}

// SetCommandDisabled toggles a command for a group.
func (s *Store) SetCommandDisabled(ctx context.Context, groupID, command string, disabled bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var err error
	if disabled {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO disabled_commands (group_id, command, disabled_at) VALUES (?, ?, ?)
			ON CONFLICT(group_id, command) DO NOTHING
		`, groupID, command, millis(s.clock.Now()))
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM disabled_commands WHERE group_id = ? AND command = ?`, groupID, command)
	}
	if err != nil {
		return fmt.Errorf("failed to toggle command: %w", err)
	}
	return nil
}

// DisabledCommands lists the disabled commands of a group by name.
func (s *Store) DisabledCommands(ctx context.Context, groupID string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT command FROM disabled_commands WHERE group_id = ? ORDER BY command`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list disabled commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// IncrementUsage implements commands.UsageRecorder.
func (s *Store) IncrementUsage(ctx context.Context, chatID, command string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_usage (chat_id, command, count, last_used) VALUES (?, ?, 1, ?)
		ON CONFLICT(chat_id, command) DO UPDATE SET
			count = count + 1,
			last_used = excluded.last_used
	`, chatID, command, millis(s.clock.Now()))
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// TopUsage returns the most used commands of a chat.
func (s *Store) TopUsage(ctx context.Context, chatID string, limit int) ([]commands.UsageStat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT command, count FROM command_usage
		WHERE chat_id = ?
		ORDER BY count DESC, command ASC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []commands.UsageStat
	for rows.Next() {
		var st commands.UsageStat
		if err := rows.Scan(&st.Command, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
