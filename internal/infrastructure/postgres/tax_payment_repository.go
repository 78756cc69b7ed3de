package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/payment"
)

const taxPaymentColumns = `id, user_id, client_id, tax_period, tax_amount, tax_inn,
	tax_recipient, tax_recipient_inn, tax_recipient_kpp, tax_recipient_account, tax_recipient_bank, tax_recipient_bik,
	payment_purpose, status, bank_id, account_id, debtor_identification, account_resolved,
	consent_id, request_id, redirect_url, payment_id, payment_date, error_message, created_at, updated_at`

type TaxPaymentRepository struct {
	db *DB
}

func NewTaxPaymentRepository(db *DB) *TaxPaymentRepository {
	return &TaxPaymentRepository{db: db}
}

func (r *TaxPaymentRepository) Create(ctx context.Context, p *payment.TaxPayment) error {
	query := `
		INSERT INTO tax_payments (` + taxPaymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.ClientID, p.TaxPeriod, p.TaxAmount, p.TaxINN,
		p.RecipientName, p.RecipientINN, p.RecipientKPP, p.RecipientAccount, p.RecipientBank, p.RecipientBIK,
		p.PaymentPurpose, string(p.Status), string(p.BankID), p.AccountID, p.DebtorIdentification, p.AccountResolved,
		p.ConsentID, p.RequestID, p.RedirectURL, p.PaymentID, nullTime(p.PaymentDate), p.ErrorMessage, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tax payment: %w", err)
	}
	return nil
}

func (r *TaxPaymentRepository) GetByID(ctx context.Context, id string) (*payment.TaxPayment, error) {
	return r.getOne(ctx, r.db, `SELECT `+taxPaymentColumns+` FROM tax_payments WHERE id = $1`, id)
}

func (r *TaxPaymentRepository) FindByPeriod(ctx context.Context, userID, period string) (*payment.TaxPayment, error) {
	return r.getOne(ctx, r.db,
		`SELECT `+taxPaymentColumns+` FROM tax_payments WHERE user_id = $1 AND tax_period = $2`,
		userID, period)
}

func (r *TaxPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.TaxPayment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		conds = append(conds, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	query := `SELECT ` + taxPaymentColumns + ` FROM tax_payments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY tax_period DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax payments: %w", err)
	}
	defer rows.Close()

	var out []*payment.TaxPayment
	for rows.Next() {
		p, err := scanTaxPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tax payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tax payments: %w", err)
	}
	return out, nil
}

func (r *TaxPaymentRepository) Update(ctx context.Context, id string, fn func(p *payment.TaxPayment) error) (*payment.TaxPayment, error) {
	var updated *payment.TaxPayment
	err := r.db.WithTx(ctx, func(ctx context.Context, q Querier) error {
		p, err := r.getOne(ctx, q, `SELECT `+taxPaymentColumns+` FROM tax_payments WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}

		query := `
			UPDATE tax_payments
			SET client_id = $2, status = $3, bank_id = $4, account_id = $5, debtor_identification = $6,
				account_resolved = $7, consent_id = $8, request_id = $9, redirect_url = $10, payment_id = $11,
				payment_date = $12, error_message = $13, updated_at = $14
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, query,
			p.ID, p.ClientID, string(p.Status), string(p.BankID), p.AccountID, p.DebtorIdentification,
			p.AccountResolved, p.ConsentID, p.RequestID, p.RedirectURL, p.PaymentID,
			nullTime(p.PaymentDate), p.ErrorMessage, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to update tax payment: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *TaxPaymentRepository) getOne(ctx context.Context, q Querier, query string, args ...any) (*payment.TaxPayment, error) {
	p, err := scanTaxPayment(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrTaxPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tax payment: %w", err)
	}
	return p, nil
}

func scanTaxPayment(row Row) (*payment.TaxPayment, error) {
	var (
		p           payment.TaxPayment
		status      string
		bankID      string
		paymentDate sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.ClientID, &p.TaxPeriod, &p.TaxAmount, &p.TaxINN,
		&p.RecipientName, &p.RecipientINN, &p.RecipientKPP, &p.RecipientAccount, &p.RecipientBank, &p.RecipientBIK,
		&p.PaymentPurpose, &status, &bankID, &p.AccountID, &p.DebtorIdentification, &p.AccountResolved,
		&p.ConsentID, &p.RequestID, &p.RedirectURL, &p.PaymentID, &paymentDate, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = payment.Status(status)
	p.BankID = bank.ID(bankID)
	p.PaymentDate = timePtr(paymentDate)
	return &p, nil
}
