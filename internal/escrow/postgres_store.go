package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateAccount(ctx context.Context, userID, mint string) (*Account, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_accounts (user_id, mint, available, locked, created_at, updated_at)
		VALUES ($1, $2, 0, 0, NOW(), NOW())
		ON CONFLICT (user_id, mint) DO NOTHING
	`, userID, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return p.GetAccount(ctx, userID, mint)
}

func (p *PostgresStore) GetAccount(ctx context.Context, userID, mint string) (*Account, error) {
	acct := &Account{UserID: userID, Mint: mint}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, locked, created_at, updated_at
		FROM escrow_accounts
		WHERE user_id = $1 AND mint = $2
	`, userID, mint).Scan(&acct.Available, &acct.Locked, &acct.CreatedAt, &acct.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Account{
			UserID:    userID,
			Mint:      mint,
			Available: "0",
			Locked:    "0",
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (p *PostgresStore) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, mint, available, locked, created_at, updated_at
		FROM escrow_accounts
		WHERE user_id = $1
		ORDER BY mint
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(&a.UserID, &a.Mint, &a.Available, &a.Locked, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (p *PostgresStore) Credit(ctx context.Context, userID, mint, amount, entryType, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Upsert balance using native NUMERIC arithmetic
	_, err = tx.ExecContext(ctx, `
		INSERT INTO escrow_accounts (user_id, mint, available, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(30,9), NOW(), NOW())
		ON CONFLICT (user_id, mint) DO UPDATE SET
			available  = escrow_accounts.available + $3::NUMERIC(30,9),
			updated_at = NOW()
	`, userID, mint, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := p.recordEntry(ctx, tx, userID, mint, entryType, amount, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresStore) Debit(ctx context.Context, userID, mint, amount, entryType, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Guarded debit: zero rows means the balance cannot cover the amount.
	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts SET
			available  = available - $3::NUMERIC(30,9),
			updated_at = NOW()
		WHERE user_id = $1 AND mint = $2 AND available >= $3::NUMERIC(30,9)
	`, userID, mint, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientFunds
	}

	if err := p.recordEntry(ctx, tx, userID, mint, entryType, amount, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresStore) LockFunds(ctx context.Context, userID, mint, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts SET
			available  = available - $3::NUMERIC(30,9),
			locked     = locked    + $3::NUMERIC(30,9),
			updated_at = NOW()
		WHERE user_id = $1 AND mint = $2 AND available >= $3::NUMERIC(30,9)
	`, userID, mint, amount)
	if err != nil {
		return fmt.Errorf("failed to lock funds: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientFunds
	}

	if err := p.recordEntry(ctx, tx, userID, mint, EntryLock, amount, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresStore) UnlockFunds(ctx context.Context, userID, mint, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts SET
			locked     = locked    - $3::NUMERIC(30,9),
			available  = available + $3::NUMERIC(30,9),
			updated_at = NOW()
		WHERE user_id = $1 AND mint = $2 AND locked >= $3::NUMERIC(30,9)
	`, userID, mint, amount)
	if err != nil {
		return fmt.Errorf("failed to unlock funds: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidState
	}

	if err := p.recordEntry(ctx, tx, userID, mint, EntryUnlock, amount, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresStore) DebitLocked(ctx context.Context, userID, mint, amount, entryType, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts SET
			locked     = locked - $3::NUMERIC(30,9),
			updated_at = NOW()
		WHERE user_id = $1 AND mint = $2 AND locked >= $3::NUMERIC(30,9)
	`, userID, mint, amount)
	if err != nil {
		return fmt.Errorf("failed to debit locked funds: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidState
	}

	if err := p.recordEntry(ctx, tx, userID, mint, entryType, amount, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresStore) History(ctx context.Context, userID, mint string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, mint, type, amount, reference, created_at
		FROM escrow_entries
		WHERE user_id = $1 AND mint = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, mint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mint, &e.Type, &e.Amount, &reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) recordEntry(ctx context.Context, tx *sql.Tx, userID, mint, entryType, amount, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_entries (id, user_id, mint, type, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(30,9), $6, NOW())
	`, idgen.WithPrefix("ent_"), userID, mint, entryType, amount, reference)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}
