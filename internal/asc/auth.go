package asc

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RaydowCharole/AppStoreIapScript/internal/metrics"
)

const (
	// Audience is the fixed JWT audience for the App Store Connect API.
	Audience = "appstoreconnect-v1"

	// TokenLifetime is how long a signed token is valid. App Store Connect
	// rejects tokens that live longer than 20 minutes.
	TokenLifetime = 20 * time.Minute
)

var errEmptyIdentity = errors.New("key id and issuer id must not be empty")

// Credentials identify an App Store Connect API key. Loaded once per process
// and kept only in memory.
type Credentials struct {
	KeyID      string
	IssuerID   string
	PrivateKey *ecdsa.PrivateKey
}

// SignedToken is a compact ES256 JWT and its validity window.
type SignedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid at t.
func (t SignedToken) Expired(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// LoadCredentials reads a .p8 private key from path. Any failure to read or
// parse the key is reported as a *KeyReadError.
func LoadCredentials(path, keyID, issuerID string) (*Credentials, error) {
	data, err := os.ReadFile(path) //nolint:gosec // key path comes from trusted config
	if err != nil {
		return nil, &KeyReadError{Path: path, Err: err}
	}

	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, &KeyReadError{Path: path, Err: err}
	}

	return &Credentials{KeyID: keyID, IssuerID: issuerID, PrivateKey: key}, nil
}

// ParsePrivateKey decodes a PEM encoded (PKCS#8 or SEC 1) P-256 private key.
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing EC private key: %w", err)
	}
	if key.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", key.Curve.Params().Name)
	}
	return key, nil
}

// Sign produces a signed token for the given identity, issued at now and
// expiring TokenLifetime later. The header and claims segments are fully
// determined by the inputs; the ECDSA signature itself is randomized.
func Sign(keyID, issuerID string, key *ecdsa.PrivateKey, now time.Time) (SignedToken, error) {
	if keyID == "" || issuerID == "" {
		return SignedToken{}, &EncodingError{Err: errEmptyIdentity}
	}

	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenLifetime)

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": issuerID,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
		"aud": Audience,
	})
	tok.Header["kid"] = keyID

	value, err := tok.SignedString(key)
	if err != nil {
		return SignedToken{}, &EncodingError{Err: err}
	}

	metrics.TokensSignedTotal.Inc()

	return SignedToken{Value: value, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Signer mints a fresh token for every call. It implements TokenProvider.
type Signer struct {
	creds   *Credentials
	nowFunc func() time.Time
}

// SignerOption configures the Signer.
type SignerOption func(*Signer)

// WithSignerNowFunc overrides the time function for testing.
func WithSignerNowFunc(f func() time.Time) SignerOption {
	return func(s *Signer) {
		s.nowFunc = f
	}
}

// NewSigner creates a Signer for the given credentials.
func NewSigner(creds *Credentials, opts ...SignerOption) *Signer {
	s := &Signer{
		creds:   creds,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign signs a token issued at now.
func (s *Signer) Sign(now time.Time) (SignedToken, error) {
	return Sign(s.creds.KeyID, s.creds.IssuerID, s.creds.PrivateKey, now)
}

// Token implements TokenProvider. Tokens are never cached: each request gets
// one signed at the current time.
func (s *Signer) Token(_ context.Context) (string, error) {
	tok, err := s.Sign(s.nowFunc())
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}
