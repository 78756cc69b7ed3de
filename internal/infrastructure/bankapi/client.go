package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultAuthTimeout = 10 * time.Second
	maxResponseBytes   = 10 << 20
)

var (
	bankTracer             = otel.Tracer("syntax/bankapi")
	bankMeter              = otel.Meter("syntax/bankapi")
	bankRequestDuration, _ = bankMeter.Float64Histogram("bankapi.request.duration",
		metric.WithDescription("Upstream bank request duration in seconds"),
		metric.WithUnit("s"),
	)
)

// Config configures one bank gateway.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	AuthTimeout time.Duration

	// RequestingBank is the team identifier sent with consent requests when
	// it cannot be derived from the client id.
	RequestingBank     string
	RequestingBankName string

	// HTTPClient overrides the default transport. Timeouts above still apply.
	HTTPClient *http.Client
}

// Gateway talks to one bank. The per-bank differences live in its dialect.
type Gateway struct {
	id                 bank.ID
	baseURL            string
	httpClient         *http.Client
	authClient         *http.Client
	requestingBank     string
	requestingBankName string
	dialect            dialect
}

var _ bank.Gateway = (*Gateway)(nil)

// New creates the gateway for the given bank.
func New(id bank.ID, cfg Config) (*Gateway, error) {
	d, err := dialectFor(id)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for %s", id)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}

	var transport http.RoundTripper
	if cfg.HTTPClient != nil {
		transport = cfg.HTTPClient.Transport
	}

	return &Gateway{
		id:                 id,
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:         &http.Client{Timeout: cfg.Timeout, Transport: transport},
		authClient:         &http.Client{Timeout: cfg.AuthTimeout, Transport: transport},
		requestingBank:     cfg.RequestingBank,
		requestingBankName: cfg.RequestingBankName,
		dialect:            d,
	}, nil
}

func (g *Gateway) Bank() bank.ID                      { return g.id }
func (g *Gateway) DisplayName() string                { return g.dialect.displayName() }
func (g *Gateway) BaseURL() string                    { return g.baseURL }
func (g *Gateway) AccountApproval() bank.ApprovalMode { return g.dialect.accountApproval() }
func (g *Gateway) PaymentApproval() bank.ApprovalMode { return g.dialect.paymentApproval() }

// call describes one upstream request.
type call struct {
	op       string
	method   string
	path     string
	query    url.Values
	token    string
	headers  http.Header
	body     any
	auth     bool
	notFound apperr.Kind
}

// do executes the call and returns the body of a 2xx response. Every other
// outcome is translated into an apperr kind.
func (g *Gateway) do(ctx context.Context, c call) ([]byte, error) {
	ctx, span := bankTracer.Start(ctx, "bank."+c.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bank.id", string(g.id)),
			attribute.String("http.method", c.method),
			attribute.String("bank.operation", c.op),
		),
	)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		bankRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("bank.id", string(g.id)),
			attribute.String("bank.operation", c.op),
			attribute.Int("http.status_code", status),
		))
	}()

	u := g.baseURL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var reader io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to encode upstream request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidRequest, err, "failed to build upstream request")
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := g.httpClient
	if c.auth {
		client = g.authClient
	}

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("bank", string(g.id)).Str("op", c.op).Msg("upstream request failed")
		return nil, transportError(g.id, err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return nil, transportError(g.id, err)
	}

	log.Debug().
		Str("bank", string(g.id)).
		Str("op", c.op).
		Str("method", c.method).
		Str("path", c.path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("upstream request")

	if status >= 200 && status < 300 {
		return body, nil
	}

	span.SetStatus(codes.Error, http.StatusText(status))
	return nil, classifyStatus(g.id, c.op, status, body, c.notFound)
}

func transportError(id bank.ID, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.UpstreamUnavailable, err, fmt.Sprintf("%s did not respond in time", id))
	}
	return apperr.Wrap(apperr.UpstreamUnavailable, err, fmt.Sprintf("%s is unreachable", id))
}

// classifyStatus maps a non-2xx upstream response onto the failure taxonomy.
func classifyStatus(id bank.ID, op string, status int, body []byte, notFound apperr.Kind) error {
	detail := upstreamDetail(body)
	msg := func(fallback string) string {
		if detail != "" {
			return fmt.Sprintf("%s: %s", fallback, detail)
		}
		return fallback
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperr.New(apperr.AuthenticationFailed, msg(fmt.Sprintf("%s rejected the credentials", id)))
	case status == http.StatusForbidden:
		return apperr.New(apperr.ConsentInvalidOrRevoked, msg(fmt.Sprintf("%s consent is invalid or revoked", id)))
	case status == http.StatusNotFound:
		kind := notFound
		if kind == apperr.Internal {
			kind = apperr.NotFound
		}
		return apperr.New(kind, msg(fmt.Sprintf("%s: %s target not found", id, op)))
	case status == http.StatusTooManyRequests, status >= 500:
		return apperr.New(apperr.UpstreamUnavailable, msg(fmt.Sprintf("%s returned %d", id, status)))
	default:
		return apperr.New(apperr.InvalidRequest, msg(fmt.Sprintf("%s rejected %s with %d", id, op, status)))
	}
}

// upstreamDetail extracts a human-readable message from common error bodies.
func upstreamDetail(body []byte) string {
	var e struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return string(e.Detail)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func decode(id bank.ID, op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.InternalNormalizationError, err, fmt.Sprintf("%s returned an unexpected %s response", id, op))
	}
	return nil
}

// teamOf derives the requesting team from a "<team>-<user>" client id.
func (g *Gateway) teamOf(clientID string) string {
	if i := strings.LastIndex(clientID, "-"); i > 0 {
		return clientID[:i]
	}
	if clientID != "" {
		return clientID
	}
	return g.requestingBank
}
