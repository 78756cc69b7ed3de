package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"syntax/internal/domain/receipt"
)

const receiptColumns = `id, transaction_id, account_id, date, amount, service, client_name, status, external_id, sent_at, created_at, updated_at`

type ReceiptRepository struct {
	db *DB
}

func NewReceiptRepository(db *DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, rc *receipt.Receipt) error {
	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		rc.ID, rc.TransactionID, rc.AccountID, rc.Date, rc.Amount, rc.Service, rc.ClientName,
		string(rc.Status), rc.ExternalID, nullTime(rc.SentAt), rc.CreatedAt, rc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*receipt.Receipt, error) {
	return r.getOne(ctx, r.db, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
}

func (r *ReceiptRepository) List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Receipt, error) {
	var (
		conds []string
		args  []any
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	out := []*receipt.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return out, nil
}

func (r *ReceiptRepository) Update(ctx context.Context, id string, fn func(rc *receipt.Receipt) error) (*receipt.Receipt, error) {
	var updated *receipt.Receipt
	err := r.db.WithTx(ctx, func(ctx context.Context, q Querier) error {
		rc, err := r.getOne(ctx, q, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(rc); err != nil {
			return err
		}

		query := `
			UPDATE receipts
			SET date = $2, amount = $3, service = $4, client_name = $5, status = $6,
				external_id = $7, sent_at = $8, updated_at = $9
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, query,
			rc.ID, rc.Date, rc.Amount, rc.Service, rc.ClientName, string(rc.Status),
			rc.ExternalID, nullTime(rc.SentAt), rc.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to update receipt: %w", err)
		}
		updated = rc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ReceiptRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return receipt.ErrReceiptNotFound
	}
	return nil
}

func (r *ReceiptRepository) getOne(ctx context.Context, q Querier, query string, args ...any) (*receipt.Receipt, error) {
	rc, err := scanReceipt(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, receipt.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return rc, nil
}

func scanReceipt(row Row) (*receipt.Receipt, error) {
	var (
		rc     receipt.Receipt
		status string
		sentAt sql.NullTime
	)
	err := row.Scan(
		&rc.ID, &rc.TransactionID, &rc.AccountID, &rc.Date, &rc.Amount, &rc.Service, &rc.ClientName,
		&status, &rc.ExternalID, &sentAt, &rc.CreatedAt, &rc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rc.Status = receipt.Status(status)
	rc.SentAt = timePtr(sentAt)
	return &rc, nil
}
