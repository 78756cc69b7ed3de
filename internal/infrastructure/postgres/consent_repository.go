package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/consent"
)

const consentColumns = `id, bank_id, client_id, consent_id, request_id, status, redirect_url, expires_at, created_at, updated_at`

type ConsentRepository struct {
	db *DB
}

func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) Create(ctx context.Context, c *consent.Consent) error {
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, string(c.Bank), c.ClientID, c.ConsentID, c.RequestID, string(c.Status),
		c.RedirectURL, nullTime(c.ExpiresAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent: %w", err)
	}
	return nil
}

func (r *ConsentRepository) GetByConsentID(ctx context.Context, bankID bank.ID, consentID string) (*consent.Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE bank_id = $1 AND consent_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, r.db, query, string(bankID), consentID)
}

func (r *ConsentRepository) GetByRequestID(ctx context.Context, bankID bank.ID, requestID string) (*consent.Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE bank_id = $1 AND request_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, r.db, query, string(bankID), requestID)
}

func (r *ConsentRepository) FindAuthorized(ctx context.Context, bankID bank.ID, clientID string) (*consent.Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE bank_id = $1 AND client_id = $2 AND status = 'authorized' AND consent_id <> ''
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, r.db, query, string(bankID), clientID)
}

func (r *ConsentRepository) List(ctx context.Context, filter consent.ListFilter) ([]*consent.Consent, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Bank != "" {
		args = append(args, string(filter.Bank))
		conds = append(conds, fmt.Sprintf("bank_id = $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + consentColumns + ` FROM consents`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var out []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consents: %w", err)
	}
	return out, nil
}

func (r *ConsentRepository) Update(ctx context.Context, id string, fn func(c *consent.Consent) error) (*consent.Consent, error) {
	var updated *consent.Consent
	err := r.db.WithTx(ctx, func(ctx context.Context, q Querier) error {
		c, err := r.getOne(ctx, q, `SELECT `+consentColumns+` FROM consents WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}

		query := `
			UPDATE consents
			SET consent_id = $2, request_id = $3, status = $4, redirect_url = $5, expires_at = $6, updated_at = $7
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, query,
			c.ID, c.ConsentID, c.RequestID, string(c.Status), c.RedirectURL, nullTime(c.ExpiresAt), c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to update consent: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ConsentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM consents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete consent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return consent.ErrConsentNotFound
	}
	return nil
}

func (r *ConsentRepository) getOne(ctx context.Context, q Querier, query string, args ...any) (*consent.Consent, error) {
	c, err := scanConsent(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, consent.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

func scanConsent(row Row) (*consent.Consent, error) {
	var (
		c         consent.Consent
		bankID    string
		status    string
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &bankID, &c.ClientID, &c.ConsentID, &c.RequestID, &status,
		&c.RedirectURL, &expiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Bank = bank.ID(bankID)
	c.Status = bank.ConsentStatus(status)
	c.ExpiresAt = timePtr(expiresAt)
	return &c, nil
}
