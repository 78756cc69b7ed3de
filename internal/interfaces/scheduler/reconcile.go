package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
	"syntax/internal/domain/payment"
)

const defaultBatchSize = 100

type Payments interface {
	ListProcessing(ctx context.Context, limit int) ([]*payment.TaxPayment, error)
	Refresh(ctx context.Context, creds banktoken.Credentials, id string) (*payment.TaxPayment, error)
	FailStaleApprovals(ctx context.Context) (int, error)
}

type Consents interface {
	ListAwaiting(ctx context.Context, limit int) ([]*consent.Consent, error)
	PollStatus(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error)
	ResolvePending(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*consent.Outcome, error)
}

// CachePurger drops expired entries from a read-through cache.
type CachePurger interface {
	PurgeCache() int
}

// Reconciler brings local payment and consent records in line with the
// banks, using the team credentials.
type Reconciler struct {
	payments  Payments
	consents  Consents
	caches    []CachePurger
	creds     banktoken.Credentials
	batchSize int
}

func NewReconciler(payments Payments, consents Consents, creds banktoken.Credentials, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reconciler{payments: payments, consents: consents, creds: creds, batchSize: batchSize}
}

// WithCaches adds a purge of each cache to every sweep.
func (r *Reconciler) WithCaches(caches ...CachePurger) *Reconciler {
	r.caches = append(r.caches, caches...)
	return r
}

// Jobs is the JobProvider of the reconciliation sweep. Stale approvals come
// first so their records are not polled in the same run.
func (r *Reconciler) Jobs(ctx context.Context) ([]Job, error) {
	jobs := []Job{&StaleApprovalJob{payments: r.payments}}

	processing, err := r.payments.ListProcessing(ctx, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing payments: %w", err)
	}
	for _, p := range processing {
		jobs = append(jobs, &PaymentRefreshJob{payments: r.payments, creds: r.creds, id: p.ID})
	}

	awaiting, err := r.consents.ListAwaiting(ctx, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list awaiting consents: %w", err)
	}
	for _, c := range awaiting {
		jobs = append(jobs, &ConsentReconcileJob{consents: r.consents, creds: r.creds, consent: c})
	}
	for _, c := range r.caches {
		jobs = append(jobs, &CachePurgeJob{cache: c})
	}

	log.Info().
		Int("processing_payments", len(processing)).
		Int("awaiting_consents", len(awaiting)).
		Msg("reconciliation jobs prepared")
	return jobs, nil
}

// PaymentRefreshJob polls the bank for one submitted payment.
type PaymentRefreshJob struct {
	payments Payments
	creds    banktoken.Credentials
	id       string
}

func (j *PaymentRefreshJob) Execute(ctx context.Context) error {
	p, err := j.payments.Refresh(ctx, j.creds, j.id)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if p.Terminal() {
		log.Info().Str("tax_payment_id", p.ID).Str("status", string(p.Status)).Msg("payment settled")
	}
	return nil
}

func (j *PaymentRefreshJob) Subject() string     { return j.id }
func (j *PaymentRefreshJob) Description() string { return "payment refresh" }

// StaleApprovalJob fails payments whose consent approval timed out.
type StaleApprovalJob struct {
	payments Payments
}

func (j *StaleApprovalJob) Execute(ctx context.Context) error {
	n, err := j.payments.FailStaleApprovals(ctx)
	if n > 0 {
		log.Warn().Int("count", n).Msg("stale payment approvals failed")
	}
	return err
}

func (j *StaleApprovalJob) Subject() string     { return "awaiting_payment_approval" }
func (j *StaleApprovalJob) Description() string { return "stale approval sweep" }

// CachePurgeJob releases the expired entries of one cache.
type CachePurgeJob struct {
	cache CachePurger
}

func (j *CachePurgeJob) Execute(ctx context.Context) error {
	if n := j.cache.PurgeCache(); n > 0 {
		log.Debug().Int("count", n).Msg("expired cache entries purged")
	}
	return nil
}

func (j *CachePurgeJob) Subject() string     { return "cache" }
func (j *CachePurgeJob) Description() string { return "cache purge" }

// ConsentReconcileJob re-reads one consent awaiting authorization.
type ConsentReconcileJob struct {
	consents Consents
	creds    banktoken.Credentials
	consent  *consent.Consent
}

func (j *ConsentReconcileJob) Execute(ctx context.Context) error {
	c := j.consent

	var (
		out *consent.Outcome
		err error
	)
	if c.ConsentID == "" {
		out, err = j.consents.ResolvePending(ctx, j.creds, c.Bank, c.RequestID, c.ClientID)
	} else {
		out, err = j.consents.PollStatus(ctx, j.creds, c.Bank, c.Ref())
	}
	if err != nil {
		return err
	}

	switch {
	case out.Deleted:
		log.Info().Str("bank", c.Bank.String()).Str("consent", c.Ref().Value).Msg("consent gone upstream, local record removed")
	case out.Changed && out.Consent != nil:
		log.Info().Str("bank", c.Bank.String()).Str("consent", c.Ref().Value).Str("status", string(out.Consent.Status)).Msg("consent status updated")
	}
	return nil
}

func (j *ConsentReconcileJob) Subject() string {
	return j.consent.Bank.String() + "/" + j.consent.Ref().Value
}

func (j *ConsentReconcileJob) Description() string { return "consent reconcile" }
