package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is how long an issued session token stays valid.
const SessionTTL = 24 * time.Hour

// Claims is the signed identity a successful login hands back to the client.
// Only public user fields go in; the password hash never leaves the store.
type Claims struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

var (
	ErrNoSecret   = errors.New("signing secret not configured")
	ErrEmptyToken = errors.New("empty token")
	ErrExpMissing = errors.New("exp missing")
)

// Issuer signs and verifies session tokens with a single server-held HMAC
// secret. Issuance and verification are pure computations; no locking.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time // for tests; defaults to time.Now
}

// NewIssuer prepares an HS256 issuer. An empty secret is refused here so a
// misconfigured process cannot mint unsigned or weakly-signed tokens.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Issuer{secret: []byte(secret), ttl: SessionTTL, nowFunc: time.Now}, nil
}

// Sign mints a session token for the given user with expiry issuedAt+24h.
func (i *Issuer) Sign(id uint, name, email string) (string, error) {
	now := i.nowFunc()
	claims := Claims{
		ID:    id,
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verify checks signature and expiry. Validity is purely a function of the
// signature and now < exp; there is no revocation list.
func (i *Issuer) Verify(tok string) (*Claims, error) {
	if tok == "" {
		return nil, ErrEmptyToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(i.nowFunc),
	)
	var claims Claims
	t, err := parser.ParseWithClaims(tok, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.ExpiresAt == nil {
		return nil, ErrExpMissing
	}
	return &claims, nil
}
