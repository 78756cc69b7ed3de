package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"syntax/internal/infrastructure/crypto"
	"syntax/internal/shared/apperr"
)

// DefaultSessionTTL bounds a session independently of the bank token it
// carries; fresh bank tokens are minted from the sealed client secret.
const DefaultSessionTTL = 30 * time.Minute

var (
	ErrTokenExpired = errors.New("session token expired")
	ErrTokenInvalid = errors.New("session token invalid")
)

// SessionClaims is the signed payload. The client secret is sealed with
// AES-GCM so the token can be inspected without exposing it.
type SessionClaims struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	BankToken    string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	jwt.RegisteredClaims
}

// Session is the decoded, verified form of a session token.
type Session struct {
	ClientID     string
	ClientSecret string
	BankToken    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type SessionCodec struct {
	secret    []byte
	encryptor *crypto.Encryptor
	ttl       time.Duration
	now       func() time.Time
}

func NewSessionCodec(secret string, encryptor *crypto.Encryptor, ttl time.Duration) *SessionCodec {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCodec{
		secret:    []byte(secret),
		encryptor: encryptor,
		ttl:       ttl,
		now:       time.Now,
	}
}

// NewCodec builds a codec from configuration. An empty encryptionKey means
// the sealing key is derived from the signing secret.
func NewCodec(secret, encryptionKey string, ttl time.Duration) (*SessionCodec, error) {
	key := encryptionKey
	if key == "" {
		derived, err := crypto.DeriveKey(secret, "syntax-session-secret")
		if err != nil {
			return nil, fmt.Errorf("failed to derive session key: %w", err)
		}
		key = derived
	}
	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}
	return NewSessionCodec(secret, encryptor, ttl), nil
}

// TTL returns the lifetime given to issued sessions.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a session for the client. clientSecret may be empty, in which
// case the session cannot mint tokens for other banks.
func (c *SessionCodec) Issue(clientID, clientSecret, bankToken string) (string, error) {
	if clientID == "" {
		return "", apperr.New(apperr.InvalidRequest, "client_id is required")
	}

	sealed, err := c.encryptor.Encrypt(clientSecret)
	if err != nil {
		return "", fmt.Errorf("failed to seal client secret: %w", err)
	}

	now := c.now()
	claims := SessionClaims{
		ClientID:     clientID,
		ClientSecret: sealed,
		BankToken:    bankToken,
		TokenType:    "bearer",
		ExpiresIn:    int(c.ttl / time.Second),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry strictly, with no leeway. Failures
// carry apperr.TokenExpiredOrInvalid and wrap ErrTokenExpired or
// ErrTokenInvalid.
func (c *SessionCodec) Verify(token string) (*Session, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.TokenExpiredOrInvalid, ErrTokenExpired, "session expired, authenticate again")
		}
		return nil, apperr.Wrap(apperr.TokenExpiredOrInvalid, ErrTokenInvalid, "invalid session token")
	}
	if !parsed.Valid || claims.ClientID == "" {
		return nil, apperr.Wrap(apperr.TokenExpiredOrInvalid, ErrTokenInvalid, "invalid session token")
	}

	secret, err := c.encryptor.Decrypt(claims.ClientSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.TokenExpiredOrInvalid, ErrTokenInvalid, "invalid session token")
	}

	s := &Session{
		ClientID:     claims.ClientID,
		ClientSecret: secret,
		BankToken:    claims.BankToken,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
