package bankapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	defaultTokenTTL  = 3600
	rubCurrency      = "RUB"
	panScheme        = "RU.CBR.PAN"
)

var accountPermissions = []string{
	"ReadAccountsDetail",
	"ReadBalances",
	"ReadTransactionsDetail",
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Detail      any    `json:"detail"`
}

// Authenticate exchanges team credentials for a bank bearer token.
func (g *Gateway) Authenticate(ctx context.Context, clientID, clientSecret string) (*bank.Token, error) {
	if clientID == "" || clientSecret == "" {
		return nil, apperr.New(apperr.InvalidRequest, "client_id and client_secret are required")
	}

	body, err := g.do(ctx, call{
		op:     "authenticate",
		method: http.MethodPost,
		path:   "/auth/bank-token",
		query:  url.Values{"client_id": {clientID}, "client_secret": {clientSecret}},
		auth:   true,
	})
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := decode(g.id, "token", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		// Some banks answer 200 with {"detail": "..."} on bad credentials.
		if resp.Detail != nil {
			return nil, apperr.Newf(apperr.AuthenticationFailed, "%s rejected the credentials: %v", g.id, resp.Detail)
		}
		return nil, apperr.Newf(apperr.InternalNormalizationError, "%s token response has no access_token", g.id)
	}
	if resp.ExpiresIn <= 0 {
		resp.ExpiresIn = defaultTokenTTL
	}
	return &bank.Token{AccessToken: resp.AccessToken, ExpiresIn: resp.ExpiresIn}, nil
}

type consentRequestBody struct {
	ClientID           string   `json:"client_id"`
	Permissions        []string `json:"permissions"`
	Reason             string   `json:"reason"`
	RequestingBank     string   `json:"requesting_bank"`
	RequestingBankName string   `json:"requesting_bank_name"`
	AutoApproved       bool     `json:"auto_approved"`
}

type consentFields struct {
	ConsentID          string `json:"consentId"`
	ConsentIDSnake     string `json:"consent_id"`
	ID                 string `json:"id"`
	RequestID          string `json:"requestId"`
	RequestIDSnake     string `json:"request_id"`
	Status             string `json:"status"`
	RedirectURI        string `json:"redirect_uri"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

type consentEnvelope struct {
	Data *consentFields `json:"data"`
	consentFields
}

func (e consentEnvelope) fields() consentFields {
	f := e.consentFields
	if e.Data == nil {
		return f
	}
	d := *e.Data
	if d.ConsentID == "" && d.ConsentIDSnake == "" && d.ID == "" {
		d.ConsentID, d.ConsentIDSnake, d.ID = f.ConsentID, f.ConsentIDSnake, f.ID
	}
	if d.RequestID == "" && d.RequestIDSnake == "" {
		d.RequestID, d.RequestIDSnake = f.RequestID, f.RequestIDSnake
	}
	if d.Status == "" {
		d.Status = f.Status
	}
	if d.ExpirationDateTime == "" {
		d.ExpirationDateTime = f.ExpirationDateTime
	}
	return d
}

func (f consentFields) requestID() string {
	if f.RequestID != "" {
		return f.RequestID
	}
	return f.RequestIDSnake
}

func (f consentFields) consentID() string {
	switch {
	case f.ConsentID != "":
		return f.ConsentID
	case f.ConsentIDSnake != "":
		return f.ConsentIDSnake
	case f.ID != "" && f.ID != f.requestID():
		return f.ID
	}
	return ""
}

// manualIDs reads the identifiers of a manual-approval response. A bare
// "id" tracks the pending request unless the bank already reports the
// consent authorized.
func (f consentFields) manualIDs() (consentID, requestID string) {
	consentID, requestID = f.ConsentID, f.requestID()
	if consentID == "" {
		consentID = f.ConsentIDSnake
	}
	if consentID != "" || requestID != "" || f.ID == "" {
		return consentID, requestID
	}
	if bank.NormalizeConsentStatus(f.Status) == bank.ConsentAuthorized {
		return f.ID, ""
	}
	return "", f.ID
}

// consentResult turns an upstream consent payload into the canonical result,
// enforcing that a manual-approval consent without a real consent id is
// never reported as authorized.
func (g *Gateway) consentResult(f consentFields, mode bank.ApprovalMode, approvalPage string) (*bank.ConsentResult, error) {
	res := &bank.ConsentResult{
		ConsentID: f.consentID(),
		RequestID: f.requestID(),
		RawStatus: f.Status,
		Status:    bank.NormalizeConsentStatus(f.Status),
	}
	if mode == bank.ApprovalManual {
		res.ConsentID, res.RequestID = f.manualIDs()
	}
	if t, err := parseBankTime(f.ExpirationDateTime); err == nil && !t.IsZero() {
		res.ExpiresAt = &t
	}

	if mode == bank.ApprovalAuto {
		if f.Status == "" {
			res.Status = bank.ConsentAuthorized
		}
		if res.ConsentID == "" {
			return nil, apperr.Newf(apperr.InternalNormalizationError, "%s consent response has no consent id", g.id)
		}
		return res, nil
	}

	if res.ConsentID == "" && res.RequestID == "" {
		return nil, apperr.Newf(apperr.InternalNormalizationError, "%s consent response has neither consent id nor request id", g.id)
	}
	if res.Status == bank.ConsentAuthorized && res.ConsentID != "" {
		return res, nil
	}
	if res.Status != bank.ConsentRevoked {
		// A pending consent with only a consent id is polled by that id.
		res.Status = bank.ConsentAwaitingAuthorization
		if res.RequestID != "" {
			res.RedirectURL = g.approvalURL(approvalPage, res.RequestID)
		}
	}
	return res, nil
}

func (g *Gateway) approvalURL(page, requestID string) string {
	return g.baseURL + page + "?request_id=" + url.QueryEscape(requestID)
}

// requestResult interprets a lookup by request id. The request is resolved
// once the bank reports a consent id.
func (g *Gateway) requestResult(f consentFields, requestID, approvalPage string) *bank.ConsentResult {
	res := &bank.ConsentResult{
		ConsentID: f.consentID(),
		RequestID: requestID,
		RawStatus: f.Status,
		Status:    bank.NormalizeConsentStatus(f.Status),
	}
	if res.ConsentID != "" && (f.Status == "" || res.Status == bank.ConsentPending) {
		res.Status = bank.ConsentAuthorized
	}
	if res.ConsentID == "" && res.Status != bank.ConsentRevoked {
		res.Status = bank.ConsentAwaitingAuthorization
		res.RedirectURL = g.approvalURL(approvalPage, requestID)
	}
	return res
}

func (g *Gateway) CreateConsent(ctx context.Context, token, clientID string) (*bank.ConsentResult, error) {
	if clientID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "client_id is required")
	}
	team := g.teamOf(clientID)
	mode := g.AccountApproval()

	body, err := g.do(ctx, call{
		op:      "create_consent",
		method:  http.MethodPost,
		path:    "/account-consents/request",
		query:   url.Values{"client_id": {clientID}},
		token:   token,
		headers: http.Header{"X-Requesting-Bank": {team}},
		body: consentRequestBody{
			ClientID:           clientID,
			Permissions:        accountPermissions,
			Reason:             "Data aggregation for " + g.requestingBankName,
			RequestingBank:     team,
			RequestingBankName: g.requestingBankName,
			AutoApproved:       mode == bank.ApprovalAuto,
		},
	})
	if err != nil {
		return nil, err
	}

	var env consentEnvelope
	if err := decode(g.id, "consent", body, &env); err != nil {
		return nil, err
	}
	return g.consentResult(env.fields(), mode, "/client/consents.html")
}

func (g *Gateway) GetConsentStatus(ctx context.Context, token, consentID string) (*bank.ConsentResult, error) {
	body, err := g.do(ctx, call{
		op:       "get_consent",
		method:   http.MethodGet,
		path:     "/account-consents/" + url.PathEscape(consentID),
		token:    token,
		notFound: apperr.ConsentNotFound,
	})
	if err != nil {
		return nil, err
	}

	var env consentEnvelope
	if err := decode(g.id, "consent", body, &env); err != nil {
		return nil, err
	}
	f := env.fields()
	res := &bank.ConsentResult{
		ConsentID: consentID,
		RequestID: f.requestID(),
		RawStatus: f.Status,
		Status:    bank.NormalizeConsentStatus(f.Status),
	}
	if t, err := parseBankTime(f.ExpirationDateTime); err == nil && !t.IsZero() {
		res.ExpiresAt = &t
	}
	return res, nil
}

func (g *Gateway) GetConsentIDByRequestID(ctx context.Context, token, requestID string) (*bank.ConsentResult, error) {
	body, err := g.do(ctx, call{
		op:       "resolve_consent_request",
		method:   http.MethodGet,
		path:     "/account-consents/requests/" + url.PathEscape(requestID),
		token:    token,
		notFound: apperr.ConsentNotFound,
	})
	if err != nil {
		return nil, err
	}

	var env consentEnvelope
	if err := decode(g.id, "consent request", body, &env); err != nil {
		return nil, err
	}
	return g.requestResult(env.fields(), requestID, "/client/consents.html"), nil
}

func (g *Gateway) RevokeConsent(ctx context.Context, token, consentID string) error {
	_, err := g.do(ctx, call{
		op:       "revoke_consent",
		method:   http.MethodDelete,
		path:     "/account-consents/" + url.PathEscape(consentID),
		token:    token,
		notFound: apperr.ConsentNotFound,
	})
	return err
}

func (g *Gateway) GetAccounts(ctx context.Context, token, consentID, clientID string) ([]bank.Account, error) {
	query := url.Values{}
	if clientID != "" {
		query.Set("client_id", clientID)
	}

	body, err := g.do(ctx, call{
		op:      "get_accounts",
		method:  http.MethodGet,
		path:    "/accounts",
		query:   query,
		token:   token,
		headers: g.dialect.consentHeaders(consentID, clientID),
	})
	if err != nil {
		return nil, err
	}
	return g.dialect.decodeAccounts(body)
}

func (g *Gateway) GetTransactions(ctx context.Context, token, consentID string, q bank.TransactionQuery) (*bank.TransactionPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	query := url.Values{
		"page":   {strconv.Itoa(page)},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa((page - 1) * limit)},
	}
	if q.ClientID != "" {
		query.Set("client_id", q.ClientID)
	}
	if q.From != nil {
		query.Set("from_booking_date_time", q.From.UTC().Format(time.RFC3339))
	}
	if q.To != nil {
		query.Set("to_booking_date_time", q.To.UTC().Format(time.RFC3339))
	}

	path := "/transactions"
	if q.AccountID != "" {
		path = "/accounts/" + url.PathEscape(q.AccountID) + "/transactions"
	}

	body, err := g.do(ctx, call{
		op:      "get_transactions",
		method:  http.MethodGet,
		path:    path,
		query:   query,
		token:   token,
		headers: g.dialect.consentHeaders(consentID, q.ClientID),
	})
	if err != nil {
		return nil, err
	}

	result, err := g.dialect.decodeTransactions(body)
	if err != nil {
		return nil, err
	}
	for i := range result.Transactions {
		if result.Transactions[i].AccountID == "" {
			result.Transactions[i].AccountID = q.AccountID
		}
	}
	if result.Pagination != nil {
		if result.Pagination.Page == 0 {
			result.Pagination.Page = page
		}
		if result.Pagination.Limit == 0 {
			result.Pagination.Limit = limit
		}
	}
	return result, nil
}

type instructedAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type debtorAccount struct {
	SchemeName     string `json:"schemeName"`
	Identification string `json:"identification"`
}

type creditorAccount struct {
	SchemeName     string `json:"schemeName"`
	Identification string `json:"identification"`
	Name           string `json:"name,omitempty"`
	BankCode       string `json:"bank_code,omitempty"`
}

type initiation struct {
	InstructedAmount instructedAmount `json:"instructedAmount"`
	DebtorAccount    debtorAccount    `json:"debtorAccount"`
	CreditorAccount  creditorAccount  `json:"creditorAccount"`
	Comment          string           `json:"comment,omitempty"`
}

type paymentConsentBody struct {
	Data struct {
		Permissions []string   `json:"permissions"`
		Initiation  initiation `json:"initiation"`
	} `json:"data"`
}

type paymentBody struct {
	Data struct {
		Initiation initiation `json:"initiation"`
	} `json:"data"`
}

func buildInitiation(amount string, currency, debtor string, creditor bank.CreditorAccount, comment string) initiation {
	if currency == "" {
		currency = rubCurrency
	}
	scheme := creditor.SchemeName
	if scheme == "" {
		scheme = panScheme
	}
	return initiation{
		InstructedAmount: instructedAmount{Amount: amount, Currency: currency},
		DebtorAccount:    debtorAccount{SchemeName: panScheme, Identification: debtor},
		CreditorAccount: creditorAccount{
			SchemeName:     scheme,
			Identification: creditor.Identification,
			Name:           creditor.Name,
			BankCode:       creditor.BankCode,
		},
		Comment: comment,
	}
}

func (g *Gateway) CreatePaymentConsent(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
	if req.ClientID == "" || req.DebtorAccount == "" || req.Creditor.Identification == "" {
		return nil, apperr.New(apperr.InvalidRequest, "client, debtor and creditor accounts are required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidRequest, "payment amount must be positive")
	}

	var payload paymentConsentBody
	payload.Data.Permissions = []string{"CreatePayment"}
	payload.Data.Initiation = buildInitiation(req.Amount.StringFixed(2), req.Currency, req.DebtorAccount, req.Creditor, "")

	team := g.teamOf(req.ClientID)
	body, err := g.do(ctx, call{
		op:      "create_payment_consent",
		method:  http.MethodPost,
		path:    "/payment-consents",
		query:   url.Values{"client_id": {req.ClientID}},
		token:   token,
		headers: http.Header{"X-Requesting-Bank": {team}, "client_id": {req.ClientID}},
		body:    payload,
	})
	if err != nil {
		return nil, err
	}

	var env consentEnvelope
	if err := decode(g.id, "payment consent", body, &env); err != nil {
		return nil, err
	}
	return g.consentResult(env.fields(), g.PaymentApproval(), "/client/payment-consents.html")
}

func (g *Gateway) GetPaymentConsent(ctx context.Context, token string, ref bank.ConsentRef) (*bank.ConsentResult, error) {
	path := "/payment-consents/" + url.PathEscape(ref.Value)
	if ref.Kind == bank.RefRequestID {
		path = "/payment-consents/requests/" + url.PathEscape(ref.Value)
	}

	body, err := g.do(ctx, call{
		op:       "get_payment_consent",
		method:   http.MethodGet,
		path:     path,
		token:    token,
		notFound: apperr.ConsentNotFound,
	})
	if err != nil {
		return nil, err
	}

	var env consentEnvelope
	if err := decode(g.id, "payment consent", body, &env); err != nil {
		return nil, err
	}
	f := env.fields()
	if ref.Kind == bank.RefRequestID {
		return g.requestResult(f, ref.Value, "/client/payment-consents.html"), nil
	}
	return &bank.ConsentResult{
		ConsentID: ref.Value,
		RequestID: f.requestID(),
		RawStatus: f.Status,
		Status:    bank.NormalizeConsentStatus(f.Status),
	}, nil
}

type paymentFields struct {
	PaymentID            string `json:"paymentId"`
	PaymentIDSnake       string `json:"payment_id"`
	ID                   string `json:"id"`
	Status               string `json:"status"`
	CreationDateTime     string `json:"creationDateTime"`
	StatusUpdateDateTime string `json:"statusUpdateDateTime"`
}

type paymentEnvelope struct {
	Data *paymentFields `json:"data"`
	paymentFields
}

func (g *Gateway) paymentResult(body []byte, fallbackID string) (*bank.PaymentResult, error) {
	var env paymentEnvelope
	if err := decode(g.id, "payment", body, &env); err != nil {
		return nil, err
	}
	f := env.paymentFields
	if env.Data != nil {
		f = *env.Data
	}

	res := &bank.PaymentResult{Status: f.Status}
	switch {
	case f.PaymentID != "":
		res.PaymentID = f.PaymentID
	case f.PaymentIDSnake != "":
		res.PaymentID = f.PaymentIDSnake
	case f.ID != "":
		res.PaymentID = f.ID
	default:
		res.PaymentID = fallbackID
	}
	if res.PaymentID == "" {
		return nil, apperr.Newf(apperr.InternalNormalizationError, "%s payment response has no payment id", g.id)
	}
	if t, err := parseBankTime(f.CreationDateTime); err == nil && !t.IsZero() {
		res.CreatedAt = &t
	}
	if t, err := parseBankTime(f.StatusUpdateDateTime); err == nil && !t.IsZero() {
		res.UpdatedAt = &t
	}
	return res, nil
}

func (g *Gateway) SubmitPayment(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
	if req.ConsentID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "payment consent id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidRequest, "payment amount must be positive")
	}

	var payload paymentBody
	payload.Data.Initiation = buildInitiation(req.Amount.StringFixed(2), req.Currency, req.DebtorAccount, req.Creditor, req.Comment)

	headers := g.dialect.consentHeaders(req.ConsentID, req.ClientID)
	headers.Set("consent_id", req.ConsentID)

	query := url.Values{}
	if req.ClientID != "" {
		query.Set("client_id", req.ClientID)
	}

	body, err := g.do(ctx, call{
		op:       "submit_payment",
		method:   http.MethodPost,
		path:     "/payments",
		query:    query,
		token:    token,
		headers:  headers,
		body:     payload,
		notFound: apperr.ConsentNotFound,
	})
	if err != nil {
		return nil, err
	}
	return g.paymentResult(body, "")
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, token, paymentID string) (*bank.PaymentResult, error) {
	if paymentID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "payment id is required")
	}
	body, err := g.do(ctx, call{
		op:     "get_payment",
		method: http.MethodGet,
		path:   "/domestic-payments/" + url.PathEscape(paymentID),
		token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, err)
	}
	return g.paymentResult(body, paymentID)
}
