package identity

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidToken indicates a session or magic-link token failed
	// validation. Every verification failure collapses into this error so
	// callers cannot distinguish which check rejected the token.
	ErrInvalidToken = errors.New("identity: invalid token")

	// ErrInvalidCredentials indicates a sign-in attempt with bad credentials.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrDomainNotAllowed indicates the email domain is outside the
	// configured allow-list.
	ErrDomainNotAllowed = errors.New("identity: email domain not allowed")
)

// Identity represents a resolved caller. A zero Identity means "none":
// resolution never yields a partial identity.
type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// IsZero reports whether the identity is absent.
func (id Identity) IsZero() bool {
	return strings.TrimSpace(id.Subject) == ""
}

// Identifier returns the normalized identifier used for allowlist matching.
func (id Identity) Identifier() string {
	return Normalize(id.Subject)
}

// NormalizedEmail returns the normalized email, or "" when unset.
func (id Identity) NormalizedEmail() string {
	return Normalize(id.Email)
}

// Normalize lower-cases and trims an identifier. All allowlist comparisons
// and mutations go through this.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail performs the minimal shape check used on mutating endpoints.
func ValidEmail(email string) bool {
	email = Normalize(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.Contains(email[at+1:], "@")
}

// EmailDomain returns the normalized domain part of an email, or "".
func EmailDomain(email string) string {
	email = Normalize(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
