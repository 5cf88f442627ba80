package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestStubProviderAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	p, err := NewStubProvider("Ada@DesignLab.org:" + string(hash))
	if err != nil {
		t.Fatalf("NewStubProvider: %v", err)
	}

	id, err := p.Authenticate("ada@designlab.org", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != "ada@designlab.org" {
		t.Fatalf("unexpected subject: %q", id.Subject)
	}

	if _, err := p.Authenticate("ada@designlab.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := p.Authenticate("nobody@designlab.org", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestNewStubProviderValidation(t *testing.T) {
	for _, spec := range []string{"", "no-colon", "not-an-email:hash", "a@b.c:"} {
		if _, err := NewStubProvider(spec); err == nil {
			t.Fatalf("spec %q: expected error", spec)
		}
	}
}

func newTestMagicLinkProvider(t *testing.T, domains string) *MagicLinkProvider {
	t.Helper()
	signer, err := NewLinkSigner("link-secret")
	if err != nil {
		t.Fatalf("NewLinkSigner: %v", err)
	}
	p, err := NewMagicLinkProvider(signer, nil, domains)
	if err != nil {
		t.Fatalf("NewMagicLinkProvider: %v", err)
	}
	return p
}

func TestMagicLinkProviderDomains(t *testing.T) {
	p := newTestMagicLinkProvider(t, "designlab.org, Example.COM")

	if !p.DomainAllowed("ada@designlab.org") {
		t.Fatalf("designlab.org should be allowed")
	}
	if !p.DomainAllowed("bob@EXAMPLE.com") {
		t.Fatalf("domain match should be case-insensitive")
	}
	if p.DomainAllowed("eve@evil.example") {
		t.Fatalf("unlisted domain should be rejected")
	}

	_, _, err := p.IssueLink(context.Background(), "http://localhost:8080", "eve@evil.example", "")
	if !errors.Is(err, ErrDomainNotAllowed) {
		t.Fatalf("want ErrDomainNotAllowed, got %v", err)
	}
}

func TestMagicLinkProviderIssueAndVerify(t *testing.T) {
	p := newTestMagicLinkProvider(t, "designlab.org")

	link, expires, err := p.IssueLink(context.Background(), "http://localhost:8080/", "ada@designlab.org", "/community/")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expires)
	}
	if !strings.HasPrefix(link, "http://localhost:8080/v1/auth/verify?token=") {
		t.Fatalf("unexpected link shape: %q", link)
	}
	if !strings.Contains(link, "callbackUrl=%2Fcommunity%2F") {
		t.Fatalf("callback missing from link: %q", link)
	}

	token := link[strings.Index(link, "token=")+len("token=") : strings.Index(link, "&callbackUrl")]
	id, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Email != "ada@designlab.org" {
		t.Fatalf("unexpected email: %q", id.Email)
	}
}

func TestMagicLinkProviderThrottle(t *testing.T) {
	p := newTestMagicLinkProvider(t, "designlab.org")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := p.IssueLink(ctx, "http://localhost", "ada@designlab.org", ""); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, _, err := p.IssueLink(ctx, "http://localhost", "ada@designlab.org", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("want ErrThrottled on fourth request, got %v", err)
	}
	// The throttle is per address.
	if _, _, err := p.IssueLink(ctx, "http://localhost", "bob@designlab.org", ""); err != nil {
		t.Fatalf("other address should not be throttled: %v", err)
	}
}

func TestFederatedProviderSignInURL(t *testing.T) {
	if _, err := NewFederatedProvider("not-a-url"); err == nil {
		t.Fatalf("expected error for relative authorize URL")
	}
	p, err := NewFederatedProvider("https://idp.example.com/authorize?client_id=portal")
	if err != nil {
		t.Fatalf("NewFederatedProvider: %v", err)
	}
	got := p.SignInURL("/admin/")
	want := "https://idp.example.com/authorize?client_id=portal&redirect_uri=%2Fadmin%2F"
	if got != want {
		t.Fatalf("SignInURL: want %q, got %q", want, got)
	}
}

func TestEmailHelpers(t *testing.T) {
	cases := []struct {
		email  string
		valid  bool
		domain string
	}{
		{"ada@designlab.org", true, "designlab.org"},
		{"  ADA@DesignLab.ORG ", true, "designlab.org"},
		{"no-at-sign", false, ""},
		{"@designlab.org", false, "designlab.org"},
		{"ada@", false, ""},
		{"a@b@c", false, "c"},
		{"", false, ""},
	}
	for _, tc := range cases {
		if got := ValidEmail(tc.email); got != tc.valid {
			t.Fatalf("ValidEmail(%q): want %v, got %v", tc.email, tc.valid, got)
		}
		if got := EmailDomain(tc.email); got != tc.domain {
			t.Fatalf("EmailDomain(%q): want %q, got %q", tc.email, tc.domain, got)
		}
	}
}
