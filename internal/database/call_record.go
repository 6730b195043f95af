package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/callbroker/callbroker/internal/database/models"
)

const callRecordColumns = `id, call_id, handle, start_time, end_time,
	 relay_account, target, attempts, disposition, cause, cause_message`

// callRecordRepo implements CallRecordRepository.
type callRecordRepo struct {
	db *DB
}

// NewCallRecordRepository creates a new CallRecordRepository.
func NewCallRecordRepository(db *DB) CallRecordRepository {
	return &callRecordRepo{db: db}
}

// Create inserts a terminal resolution record.
func (r *callRecordRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (call_id, handle, start_time, end_time,
		 relay_account, target, attempts, disposition, cause, cause_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.Handle, rec.StartTime, rec.EndTime, rec.RelayAccount,
		rec.Target, rec.Attempts, rec.Disposition, rec.Cause, rec.CauseMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByCallID returns the record for a call, or nil if not found.
func (r *callRecordRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE call_id = ?`, callID,
	).Scan(&rec.ID, &rec.CallID, &rec.Handle, &rec.StartTime, &rec.EndTime,
		&rec.RelayAccount, &rec.Target, &rec.Attempts, &rec.Disposition,
		&rec.Cause, &rec.CauseMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &rec, nil
}

// List returns records matching the filter, newest first, plus the total
// count matching the filter ignoring pagination.
func (r *callRecordRepo) List(ctx context.Context, filter CallRecordListFilter) ([]models.CallRecord, int, error) {
	var where []string
	var args []any
	if filter.Disposition != "" {
		where = append(where, "disposition = ?")
		args = append(args, filter.Disposition)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_records`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records`+whereClause+
			` ORDER BY start_time DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying call records: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.Handle, &rec.StartTime,
			&rec.EndTime, &rec.RelayAccount, &rec.Target, &rec.Attempts,
			&rec.Disposition, &rec.Cause, &rec.CauseMessage); err != nil {
			return nil, 0, fmt.Errorf("scanning call record row: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// CountByDisposition returns record counts grouped by disposition.
func (r *callRecordRepo) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM call_records GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("counting call records by disposition: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disposition string
		var n int64
		if err := rows.Scan(&disposition, &n); err != nil {
			return nil, fmt.Errorf("scanning disposition count: %w", err)
		}
		counts[disposition] = n
	}
	return counts, rows.Err()
}
