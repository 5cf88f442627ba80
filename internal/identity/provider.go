package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"designlab.org/internal/mail"
)

// SignInPath is the page unauthenticated callers are redirected to.
const SignInPath = "/auth/signin"

// Provider is the sign-in mechanism selected once at process start. Session
// resolution after sign-in is common to all providers (session.go); the
// provider only governs how a session gets established.
type Provider interface {
	Name() string
	// SignInURL returns where an unauthenticated caller should be sent,
	// preserving the original destination as the callback target.
	SignInURL(callbackURL string) string
}

func signInURL(callbackURL string) string {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return SignInPath
	}
	return SignInPath + "?callbackUrl=" + url.QueryEscape(callbackURL)
}

// StubProvider authenticates against a fixed in-memory credential table.
// Development only.
type StubProvider struct {
	// users maps normalized email to a bcrypt password hash.
	users map[string]string
}

// NewStubProvider parses "email:bcrypt-hash" pairs separated by commas.
func NewStubProvider(spec string) (*StubProvider, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, hash, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed stub user entry %q", pair)
		}
		email = Normalize(email)
		if !ValidEmail(email) || strings.TrimSpace(hash) == "" {
			return nil, fmt.Errorf("malformed stub user entry %q", pair)
		}
		users[email] = strings.TrimSpace(hash)
	}
	if len(users) == 0 {
		return nil, errors.New("stub provider requires at least one user")
	}
	return &StubProvider{users: users}, nil
}

func (p *StubProvider) Name() string { return "stub" }

func (p *StubProvider) SignInURL(callbackURL string) string {
	return signInURL(callbackURL)
}

// Authenticate verifies credentials and returns the caller identity.
func (p *StubProvider) Authenticate(email, password string) (Identity, error) {
	email = Normalize(email)
	hash, ok := p.users[email]
	if !ok {
		// Equalize the cost of unknown-user and wrong-password paths.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Subject: email, Email: email}, nil
}

// MagicLinkProvider issues signed sign-in links to allow-listed email
// domains. Issuance is throttled per email address.
type MagicLinkProvider struct {
	signer  *LinkSigner
	sender  mail.Sender
	domains []string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ErrThrottled indicates too many issuance requests for one address.
var ErrThrottled = errors.New("identity: link issuance throttled")

// NewMagicLinkProvider wires the signer, delivery transport and the domain
// allow-list (comma separated).
func NewMagicLinkProvider(signer *LinkSigner, sender mail.Sender, domains string) (*MagicLinkProvider, error) {
	if signer == nil {
		return nil, errors.New("link signer is required")
	}
	if sender == nil {
		sender = mail.LogSender{}
	}
	var list []string
	for _, d := range strings.Split(domains, ",") {
		d = Normalize(d)
		if d != "" {
			list = append(list, d)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("at least one allowed domain is required")
	}
	return &MagicLinkProvider{
		signer:   signer,
		sender:   sender,
		domains:  list,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

func (p *MagicLinkProvider) Name() string { return "magiclink" }

func (p *MagicLinkProvider) SignInURL(callbackURL string) string {
	return signInURL(callbackURL)
}

// DomainAllowed reports whether the email's domain is on the allow-list.
func (p *MagicLinkProvider) DomainAllowed(email string) bool {
	domain := EmailDomain(email)
	for _, d := range p.domains {
		if domain == d {
			return true
		}
	}
	return false
}

// IssueLink validates the domain, applies the per-address throttle, signs a
// token and hands the full verification link to the sender.
func (p *MagicLinkProvider) IssueLink(ctx context.Context, baseURL, email, callbackURL string) (string, time.Time, error) {
	email = Normalize(email)
	if !ValidEmail(email) {
		return "", time.Time{}, errors.New("valid email is required")
	}
	if !p.DomainAllowed(email) {
		return "", time.Time{}, ErrDomainNotAllowed
	}
	if !p.limiter(email).Allow() {
		return "", time.Time{}, ErrThrottled
	}
	token, expires, err := p.signer.Issue(email)
	if err != nil {
		return "", time.Time{}, err
	}
	link := strings.TrimRight(baseURL, "/") + "/v1/auth/verify?token=" + url.QueryEscape(token)
	if strings.TrimSpace(callbackURL) != "" {
		link += "&callbackUrl=" + url.QueryEscape(callbackURL)
	}
	if err := p.sender.SendLink(ctx, email, link); err != nil {
		return "", time.Time{}, err
	}
	return link, expires, nil
}

// Verify delegates to the signer.
func (p *MagicLinkProvider) Verify(token string) (Identity, error) {
	email, err := p.signer.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: email, Email: email}, nil
}

// One link per address every 30 seconds, burst of 3.
func (p *MagicLinkProvider) limiter(email string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[email]
	if !ok {
		lim = rate.NewLimiter(rate.Every(30*time.Second), 3)
		p.limiters[email] = lim
	}
	return lim
}

// FederatedProvider hands sign-in off to an external identity provider.
// The gateway only needs the authorize URL; the IdP redirects back with an
// established session via its own callback handler.
type FederatedProvider struct {
	authorizeURL string
}

// NewFederatedProvider validates the configured authorize endpoint.
func NewFederatedProvider(authorizeURL string) (*FederatedProvider, error) {
	authorizeURL = strings.TrimSpace(authorizeURL)
	u, err := url.Parse(authorizeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("federated provider requires an absolute authorize URL")
	}
	return &FederatedProvider{authorizeURL: authorizeURL}, nil
}

func (p *FederatedProvider) Name() string { return "federated" }

func (p *FederatedProvider) SignInURL(callbackURL string) string {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return p.authorizeURL
	}
	sep := "?"
	if strings.Contains(p.authorizeURL, "?") {
		sep = "&"
	}
	return p.authorizeURL + sep + "redirect_uri=" + url.QueryEscape(callbackURL)
}
