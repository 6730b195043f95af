package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/callbroker/callbroker/internal/database/models"
)

const accountColumns = `sequence, id, label, component, capabilities, slot_index,
	 schemes, voicemail_number, authorized, enabled, created_at, updated_at`

// accountRepo implements AccountRepository.
type accountRepo struct {
	db *DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *DB) AccountRepository {
	return &accountRepo{db: db}
}

// Create inserts a new account. The assigned sequence is written back.
func (r *accountRepo) Create(ctx context.Context, acc *models.Account) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, label, component, capabilities, slot_index,
		 schemes, voicemail_number, authorized, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		acc.ID, acc.Label, acc.Component, acc.Capabilities, acc.SlotIndex,
		acc.Schemes, acc.VoicemailNumber, acc.Authorized, acc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	acc.Sequence = seq
	return nil
}

// GetByID returns an account by its identifier, or nil if not found.
func (r *accountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id,
	))
}

// List returns all accounts ordered by sequence.
func (r *accountRepo) List(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	return r.scanMany(rows)
}

// ListEnabled returns all enabled accounts ordered by sequence.
func (r *accountRepo) ListEnabled(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE enabled = 1 ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("querying enabled accounts: %w", err)
	}
	defer rows.Close()

	return r.scanMany(rows)
}

// Update modifies an existing account, matched by identifier.
func (r *accountRepo) Update(ctx context.Context, acc *models.Account) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET label = ?, component = ?, capabilities = ?,
		 slot_index = ?, schemes = ?, voicemail_number = ?, authorized = ?,
		 enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		acc.Label, acc.Component, acc.Capabilities, acc.SlotIndex, acc.Schemes,
		acc.VoicemailNumber, acc.Authorized, acc.Enabled, acc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return nil
}

// Delete removes an account by identifier.
func (r *accountRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// Count returns the number of registered accounts.
func (r *accountRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

func (r *accountRepo) scanOne(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.Sequence, &a.ID, &a.Label, &a.Component, &a.Capabilities,
		&a.SlotIndex, &a.Schemes, &a.VoicemailNumber, &a.Authorized, &a.Enabled,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &a, nil
}

func (r *accountRepo) scanMany(rows *sql.Rows) ([]models.Account, error) {
	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.Sequence, &a.ID, &a.Label, &a.Component,
			&a.Capabilities, &a.SlotIndex, &a.Schemes, &a.VoicemailNumber,
			&a.Authorized, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
