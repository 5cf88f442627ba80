package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLinkTTL is the validity window of a magic link from issuance.
const DefaultLinkTTL = 24 * time.Hour

// linkPayload is the self-contained token record: an identity claim plus an
// expiry, signed as a whole.
type linkPayload struct {
	Email     string `json:"email"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nonce"`
}

// LinkSigner issues and verifies HMAC-signed magic-link tokens. The token is
// base64url(payload) + "." + base64url(HMAC-SHA256(payload)).
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// LinkOption configures a LinkSigner.
type LinkOption func(*LinkSigner)

// WithLinkTTL overrides the validity window.
func WithLinkTTL(ttl time.Duration) LinkOption {
	return func(s *LinkSigner) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLinkClock overrides the time source (useful for tests).
func WithLinkClock(fn func() time.Time) LinkOption {
	return func(s *LinkSigner) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewLinkSigner constructs a signer over the server-held secret.
func NewLinkSigner(secret string, opts ...LinkOption) (*LinkSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("link secret is required")
	}
	s := &LinkSigner{
		secret: []byte(secret),
		ttl:    DefaultLinkTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a signed token for the given email.
func (s *LinkSigner) Issue(email string) (string, time.Time, error) {
	email = Normalize(email)
	if !ValidEmail(email) {
		return "", time.Time{}, errors.New("valid email is required")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	payload := linkPayload{
		Email:     email,
		IssuedAt:  now.Unix(),
		ExpiresAt: expires.Unix(),
		Nonce:     uuid.NewString(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", time.Time{}, err
	}
	segment := base64.RawURLEncoding.EncodeToString(data)
	sig := base64.RawURLEncoding.EncodeToString(s.sign(segment))
	return segment + "." + sig, expires, nil
}

// Verify checks the token signature in constant time, then the expiry.
// Any failure — bad encoding, tampered signature, expired window — yields
// ErrInvalidToken.
func (s *LinkSigner) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal(sig, s.sign(parts[0])) {
		return "", ErrInvalidToken
	}
	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	var payload linkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", ErrInvalidToken
	}
	if payload.ExpiresAt <= 0 || s.now().UTC().Unix() > payload.ExpiresAt {
		return "", ErrInvalidToken
	}
	email := Normalize(payload.Email)
	if !ValidEmail(email) {
		return "", ErrInvalidToken
	}
	return email, nil
}

func (s *LinkSigner) sign(segment string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(segment))
	return mac.Sum(nil)
}
