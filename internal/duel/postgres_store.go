package duel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed duel store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, duel *Duel) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO duels (id, player1, player2, stake, token_mint, status,
			player1_submitted, player2_submitted, winner, game_id,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4::NUMERIC(30,9), $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, $13)
	`, duel.ID, duel.Player1, duel.Player2, duel.Stake, duel.TokenMint, duel.Status,
		duel.Player1Submitted, duel.Player2Submitted, duel.Winner, duel.GameID,
		duel.ExpiresAt, duel.CreatedAt, duel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert duel: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Duel, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, player1, player2, stake, token_mint, status,
			player1_submitted, player2_submitted, winner, game_id,
			expires_at, created_at, updated_at
		FROM duels WHERE id = $1
	`, id)

	duel, err := scanDuel(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return duel, err
}

func (p *PostgresStore) Update(ctx context.Context, duel *Duel) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE duels SET
			player2           = NULLIF($2, ''),
			status            = $3,
			player1_submitted = NULLIF($4, ''),
			player2_submitted = NULLIF($5, ''),
			winner            = NULLIF($6, ''),
			updated_at        = $7
		WHERE id = $1
	`, duel.ID, duel.Player2, duel.Status,
		duel.Player1Submitted, duel.Player2Submitted, duel.Winner, duel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update duel: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, after *pagination.Cursor, limit int) ([]*Duel, error) {
	query := `
		SELECT id, player1, player2, stake, token_mint, status,
			player1_submitted, player2_submitted, winner, game_id,
			expires_at, created_at, updated_at
		FROM duels
		WHERE status = $1`
	args := []any{status}
	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDuels(rows)
}

func (p *PostgresStore) ListByPlayer(ctx context.Context, wallet string, after *pagination.Cursor, limit int) ([]*Duel, error) {
	query := `
		SELECT id, player1, player2, stake, token_mint, status,
			player1_submitted, player2_submitted, winner, game_id,
			expires_at, created_at, updated_at
		FROM duels
		WHERE (player1 = $1 OR player2 = $1)`
	args := []any{wallet}
	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDuels(rows)
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Duel, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, player1, player2, stake, token_mint, status,
			player1_submitted, player2_submitted, winner, game_id,
			expires_at, created_at, updated_at
		FROM duels
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3
	`, StatusOpen, before, limit)
	if err != nil {
		return nil, err
	}
	return collectDuels(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDuel(row rowScanner) (*Duel, error) {
	d := &Duel{}
	var player2, p1Sub, p2Sub, winner, gameID sql.NullString
	err := row.Scan(&d.ID, &d.Player1, &player2, &d.Stake, &d.TokenMint, &d.Status,
		&p1Sub, &p2Sub, &winner, &gameID,
		&d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Player2 = player2.String
	d.Player1Submitted = p1Sub.String
	d.Player2Submitted = p2Sub.String
	d.Winner = winner.String
	d.GameID = gameID.String
	return d, nil
}

func collectDuels(rows *sql.Rows) ([]*Duel, error) {
	defer rows.Close()

	var duels []*Duel
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, err
		}
		duels = append(duels, d)
	}
	return duels, rows.Err()
}
