package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

const (
	defaultPage  = 1
	defaultLimit = 50
	maxLimit     = 500
)

// Filter narrows a cached transaction list. Bounds are inclusive and
// compared against the absolute amount.
type Filter struct {
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	From      *time.Time
	To        *time.Time
}

func (f Filter) Validate() error {
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return apperr.New(apperr.InvalidRequest, "min_amount must not exceed max_amount")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return apperr.New(apperr.InvalidRequest, "date_from must not be after date_to")
	}
	return nil
}

func (f Filter) empty() bool {
	return f.MinAmount == nil && f.MaxAmount == nil && f.From == nil && f.To == nil
}

func (f Filter) Match(tx bank.Transaction) bool {
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.From != nil && tx.BookedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.BookedAt.After(*f.To) {
		return false
	}
	return true
}

// Apply returns the transactions matching f without touching the input.
func (f Filter) Apply(txs []bank.Transaction) []bank.Transaction {
	if f.empty() {
		return txs
	}
	out := make([]bank.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Query selects the transactions of one account, or of the whole client
// when AccountID is empty.
type Query struct {
	Bank      bank.ID
	ClientID  string
	AccountID string
	Page      int
	Limit     int
	Filter    Filter
}

func (q *Query) normalize() error {
	if q.ClientID == "" {
		return apperr.New(apperr.InvalidRequest, "client_id is required")
	}
	if q.Page <= 0 {
		q.Page = defaultPage
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q.Filter.Validate()
}

// Result is a filtered page plus where it came from.
type Result struct {
	Transactions    []bank.Transaction `json:"transactions"`
	Pagination      *bank.Pagination   `json:"pagination,omitempty"`
	FromCache       bool               `json:"from_cache"`
	CacheAgeSeconds *int               `json:"cache_age_seconds,omitempty"`
}

// ParseDateBound parses an ISO date or timestamp. A date-only upper bound
// covers the whole day.
func ParseDateBound(s string, upper bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidRequest, "invalid date %q, expected YYYY-MM-DD", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ParseAmount parses an optional decimal bound.
func ParseAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidRequest, "invalid amount %q", s)
	}
	return &d, nil
}
