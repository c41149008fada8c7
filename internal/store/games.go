package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const gameColumns = `id, group_id, variant, active, activator_id, created_at, ended_at`

// CreateGame implements games.Store.
func (s *Store) CreateGame(ctx context.Context, g *games.Game) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM games WHERE group_id = ? AND variant = ? AND active = 1`,
			g.GroupID, string(g.Variant)).Scan(&exists)
		switch {
		case err == nil:
			return games.ErrAlreadyActive
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check active game: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO games (`+gameColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, g.ID, g.GroupID, string(g.Variant), boolInt(g.Active), g.ActivatorID, millis(g.CreatedAt), millis(g.EndedAt))
		if err != nil {
			return fmt.Errorf("failed to insert game: %w", err)
		}
		return nil
	})
}

// ActiveGame implements games.Store.
func (s *Store) ActiveGame(ctx context.Context, groupID string, v games.Variant) (*games.Game, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	g, err := s.loadOne(ctx, s.db, `
		SELECT `+gameColumns+` FROM games
		WHERE group_id = ? AND variant = ? AND active = 1
	`, groupID, string(v))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, games.ErrNoActiveGame
	}
	return g, err
}

// ActiveGames implements games.Store.
func (s *Store) ActiveGames(ctx context.Context, v games.Variant) ([]*games.Game, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE variant = ? AND active = 1
		ORDER BY created_at ASC
	`, string(v))
	if err != nil {
		return nil, fmt.Errorf("failed to query active games: %w", err)
	}
	var out []*games.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, g := range out {
		if err := s.loadChildren(ctx, s.db, g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LatestGame implements games.Store.
func (s *Store) LatestGame(ctx context.Context, groupID string, v games.Variant) (*games.Game, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	g, err := s.loadOne(ctx, s.db, `
		SELECT `+gameColumns+` FROM games
		WHERE group_id = ? AND variant = ?
		ORDER BY active DESC, created_at DESC
		LIMIT 1
	`, groupID, string(v))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, games.ErrNoGame
	}
	return g, err
}

// AddItem implements games.Store.
func (s *Store) AddItem(ctx context.Context, gameID string, item *games.Item) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var active int
		err := tx.QueryRowContext(ctx, `SELECT active FROM games WHERE id = ?`, gameID).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && active == 0) {
			return games.ErrNoActiveGame
		}
		if err != nil {
			return fmt.Errorf("failed to check game: %w", err)
		}

		var pending int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM game_items WHERE game_id = ? AND sender_id = ? AND revealed = 0`,
			gameID, item.SenderID).Scan(&pending); err != nil {
			return fmt.Errorf("failed to check submissions: %w", err)
		}
		if pending > 0 {
			return games.ErrAlreadySubmitted
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO game_items (id, game_id, sender_id, media_kind, media, caption, body, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, gameID, item.SenderID, string(item.Payload.MediaKind), item.Payload.Media,
			item.Payload.Caption, item.Payload.Text, millis(item.SubmittedAt))
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		return nil
	})
}

// MarkRevealed implements games.Store.
func (s *Store) MarkRevealed(ctx context.Context, gameID, itemID, messageRef string, order int, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE game_items SET revealed = 1, reveal_order = ?, message_ref = ?, revealed_at = ?
		WHERE id = ? AND game_id = ?
	`, order, messageRef, millis(at), itemID, gameID)
	if err != nil {
		return fmt.Errorf("failed to mark item revealed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return games.ErrNothingToReveal
	}
	return nil
}

// AddReaction implements games.Store.
func (s *Store) AddReaction(ctx context.Context, gameID string, r *games.Reaction) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_reactions (id, game_id, item_id, reactor_id, kind, reacted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, gameID, r.ItemID, r.ReactorID, string(r.Kind), millis(r.ReactedAt))
	if err != nil {
		return fmt.Errorf("failed to insert reaction: %w", err)
	}
	return nil
}

// DiscardPending implements games.Store.
func (s *Store) DiscardPending(ctx context.Context, gameID string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM game_items WHERE game_id = ? AND revealed = 0`, gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to discard pending items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// EndGame implements games.Store.
func (s *Store) EndGame(ctx context.Context, gameID string, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE games SET active = 0, ended_at = ? WHERE id = ?`, millis(at), gameID)
	if err != nil {
		return fmt.Errorf("failed to end game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return games.ErrNoGame
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*games.Game, error) {
	var (
		g                  games.Game
		variant            string
		active             int
		createdAt, endedAt int64
	)
	if err := row.Scan(&g.ID, &g.GroupID, &variant, &active, &g.ActivatorID, &createdAt, &endedAt); err != nil {
		return nil, err
	}
	g.Variant = games.Variant(variant)
	g.Active = active == 1
	g.CreatedAt = fromMillis(createdAt)
	g.EndedAt = fromMillis(endedAt)
	return &g, nil
}

func (s *Store) loadOne(ctx context.Context, q querier, query string, args ...any) (*games.Game, error) {
	g, err := scanGame(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	if err := s.loadChildren(ctx, q, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) loadChildren(ctx context.Context, q querier, g *games.Game) error {
	items, err := q.QueryContext(ctx, `
		SELECT id, sender_id, media_kind, media, caption, body, submitted_at,
			revealed, reveal_order, message_ref, revealed_at
		FROM game_items WHERE game_id = ?
		ORDER BY submitted_at ASC, id ASC
	`, g.ID)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = items.Close() }()

	for items.Next() {
		var (
			it                      games.Item
			mediaKind               string
			revealed                int
			submittedAt, revealedAt int64
		)
		if err := items.Scan(&it.ID, &it.SenderID, &mediaKind, &it.Payload.Media, &it.Payload.Caption,
			&it.Payload.Text, &submittedAt, &revealed, &it.RevealOrder, &it.MessageRef, &revealedAt); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		it.Payload.MediaKind = comms.MediaKind(mediaKind)
		it.SubmittedAt = fromMillis(submittedAt)
		it.Revealed = revealed == 1
		it.RevealedAt = fromMillis(revealedAt)
		g.Items = append(g.Items, it)
	}
	if err := items.Err(); err != nil {
		return err
	}

	reactions, err := q.QueryContext(ctx, `
		SELECT id, item_id, reactor_id, kind, reacted_at
		FROM game_reactions WHERE game_id = ?
		ORDER BY reacted_at ASC, rowid ASC
	`, g.ID)
	if err != nil {
		return fmt.Errorf("failed to query reactions: %w", err)
	}
	defer func() { _ = reactions.Close() }()

	for reactions.Next() {
		var (
			r         games.Reaction
			kind      string
			reactedAt int64
		)
		if err := reactions.Scan(&r.ID, &r.ItemID, &r.ReactorID, &kind, &reactedAt); err != nil {
			return fmt.Errorf("failed to scan reaction: %w", err)
		}
		r.Kind = games.ReactionKind(kind)
		r.ReactedAt = fromMillis(reactedAt)
		g.Reactions = append(g.Reactions, r)
	}
	return reactions.Err()
}
