package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusAwaitingApproval Status = "awaiting_payment_approval"
	StatusPaid             Status = "paid"
	StatusFailed           Status = "failed"
)

// Federal Tax Service payee details used for every tax record.
const (
	RecipientName    = "ФНС России"
	RecipientINN     = "7707329152"
	RecipientKPP     = "770701001"
	RecipientAccount = "40101810800000010041"
	RecipientBank    = "ГУ Банка России по ЦФО"
	RecipientBIK     = "044525000"
	RecipientScheme  = "RU.CBR.PAN"

	Currency = "RUB"
)

var (
	ErrTaxPaymentNotFound = apperr.New(apperr.NotFound, "tax payment not found")
	ErrAlreadyPaid        = apperr.New(apperr.InvalidRequest, "tax is already paid")
	ErrInProgress         = apperr.New(apperr.InvalidRequest, "payment is already being processed")
	ErrNotAwaiting        = apperr.New(apperr.InvalidRequest, "payment is not waiting for consent approval")
)

const approvalTimedOut = "payment consent approval timed out"

// TaxPayment is a tax obligation and the state of its payment.
type TaxPayment struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	ClientID             string          `json:"client_id,omitempty"`
	TaxPeriod            string          `json:"tax_period"`
	TaxAmount            decimal.Decimal `json:"tax_amount"`
	TaxINN               string          `json:"tax_inn"`
	RecipientName        string          `json:"tax_recipient"`
	RecipientINN         string          `json:"tax_recipient_inn"`
	RecipientKPP         string          `json:"tax_recipient_kpp"`
	RecipientAccount     string          `json:"tax_recipient_account"`
	RecipientBank        string          `json:"tax_recipient_bank"`
	RecipientBIK         string          `json:"tax_recipient_bik"`
	PaymentPurpose       string          `json:"payment_purpose"`
	Status               Status          `json:"status"`
	BankID               bank.ID         `json:"bank_id,omitempty"`
	AccountID            string          `json:"account_id,omitempty"`
	DebtorIdentification string          `json:"debtor_identification,omitempty"`
	AccountResolved      bool            `json:"account_resolved"`
	ConsentID            string          `json:"consent_id,omitempty"`
	RequestID            string          `json:"request_id,omitempty"`
	RedirectURL          string          `json:"redirect_url,omitempty"`
	PaymentID            string          `json:"payment_id,omitempty"`
	PaymentDate          *time.Time      `json:"payment_date,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Creditor returns the payee of the tax.
func (p *TaxPayment) Creditor() bank.CreditorAccount {
	return bank.CreditorAccount{
		SchemeName:     RecipientScheme,
		Identification: p.RecipientAccount,
		BankCode:       p.RecipientBIK,
		Name:           p.RecipientName,
	}
}

// Terminal reports whether the record reached paid or failed.
func (p *TaxPayment) Terminal() bool {
	return p.Status == StatusPaid || p.Status == StatusFailed
}

// MapPaymentStatus maps an upstream payment status onto the local state.
// Anything not clearly settled or rejected stays processing and is polled.
func MapPaymentStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "completed", "success", "acceptedsettlementcompleted", "acceptedcreditsettlementcompleted":
		return StatusPaid
	case "rejected", "failed":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

type ListFilter struct {
	UserID        string
	Statuses      []Status
	UpdatedBefore *time.Time
	Limit         int
}

// PayRequest selects the account a tax is paid from.
type PayRequest struct {
	BankID    bank.ID
	AccountID string
	ClientID  string
}

func (r PayRequest) Validate() error {
	if r.BankID == "" {
		return apperr.New(apperr.InvalidRequest, "bank_id is required")
	}
	if r.AccountID == "" {
		return apperr.New(apperr.InvalidRequest, "account_id is required")
	}
	return nil
}

// SyncResult reports whether a tax record was created for the period.
type SyncResult struct {
	Created bool        `json:"created"`
	Payment *TaxPayment `json:"tax_payment"`
}

var monthNames = [...]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// previousPeriod returns the YYYY-MM period before now and its purpose text.
func previousPeriod(now time.Time, inn string) (period, purpose string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	period = prev.Format("2006-01")
	purpose = "Налог на профессиональный доход за " + monthNames[prev.Month()-1] + " " + prev.Format("2006") + " г. ИНН " + inn
	return period, purpose
}
