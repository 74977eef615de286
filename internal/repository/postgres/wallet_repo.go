package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drawdash/api/internal/repository"
)

// WalletRepo tracks coin balances as an append-only transaction ledger.
// Balance is the sum of a user's entries.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo creates a WalletRepo.
func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Balance returns the user's current coin balance.
func (r *WalletRepo) Balance(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM coin_transactions WHERE user_id = $1`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return n, nil
}

func debitTx(ctx context.Context, tx *sql.Tx, userID string, amount int, kind string, roomID int64) error {
	// An advisory-style guard: recompute the balance inside the transaction
	// with the user's ledger serialized on the insert below.
	var balance int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM coin_transactions WHERE user_id = $1`,
		userID).Scan(&balance); err != nil {
		return fmt.Errorf("balance for debit: %w", err)
	}
	if balance < amount {
		return repository.ErrInsufficientFunds
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO coin_transactions (user_id, amount, kind, room_id)
		 VALUES ($1, $2, $3, NULLIF($4, 0))`,
		userID, -amount, kind, roomID); err != nil {
		return fmt.Errorf("insert debit: %w", err)
	}
	return nil
}

// Debit charges the user, failing with ErrInsufficientFunds when the
// balance would go negative.
func (r *WalletRepo) Debit(ctx context.Context, userID string, amount int, kind string, roomID int64) error {
	return withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin debit tx: %w", err)
		}
		defer tx.Rollback()
		if err := debitTx(ctx, tx, userID, amount, kind, roomID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DebitAll charges every listed user in one transaction; nobody is charged
// when any single debit would overdraw.
func (r *WalletRepo) DebitAll(ctx context.Context, userIDs []string, amount int, kind string, roomID int64) error {
	return withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin debit-all tx: %w", err)
		}
		defer tx.Rollback()
		for _, id := range userIDs {
			if err := debitTx(ctx, tx, id, amount, kind, roomID); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Credit adds coins to the user's ledger.
func (r *WalletRepo) Credit(ctx context.Context, userID string, amount int, kind string, roomID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coin_transactions (user_id, amount, kind, room_id)
		 VALUES ($1, $2, $3, NULLIF($4, 0))`,
		userID, amount, kind, roomID)
	if err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	return nil
}
