package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alekspetrov/turma/internal/comms"
)

// ErrNoSnapshot is returned when a group's membership was never saved.
var ErrNoSnapshot = errors.New("no group snapshot")

// SaveGroupSnapshot stores the last known membership of a group.
func (s *Store) SaveGroupSnapshot(ctx context.Context, meta *comms.GroupMetadata) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := json.Marshal(meta.Members)
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}
	admins, err := json.Marshal(meta.Admins)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_snapshots (group_id, name, members, admins, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			name = excluded.name,
			members = excluded.members,
			admins = excluded.admins,
			updated_at = excluded.updated_at
	`, meta.ID, meta.Name, string(members), string(admins), millis(s.clock.Now()))
	if err != nil {
		return fmt.Errorf("failed to save group snapshot: %w", err)
	}
	return nil
}

// GroupSnapshot returns the last saved membership of a group.
func (s *Store) GroupSnapshot(ctx context.Context, groupID string) (*comms.GroupMetadata, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		meta            = comms.GroupMetadata{ID: groupID}
		members, admins string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, members, admins FROM group_snapshots WHERE group_id = ?`, groupID,
	).Scan(&meta.Name, &members, &admins)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &meta.Members); err != nil {
		return nil, fmt.Errorf("failed to parse members: %w", err)
	}
	if err := json.Unmarshal([]byte(admins), &meta.Admins); err != nil {
		return nil, fmt.Errorf("failed to parse admins: %w", err)
	}
	return &meta, nil
}
