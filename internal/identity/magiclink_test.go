package identity

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLinkSignerRoundTrip(t *testing.T) {
	signer, err := NewLinkSigner("link-secret")
	if err != nil {
		t.Fatalf("NewLinkSigner: %v", err)
	}

	token, expires, err := signer.Issue("Ada@DesignLab.org")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expires)
	}

	email, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if email != "ada@designlab.org" {
		t.Fatalf("email not normalized: %q", email)
	}
}

func TestLinkSignerRejectsTampering(t *testing.T) {
	signer, err := NewLinkSigner("link-secret")
	if err != nil {
		t.Fatalf("NewLinkSigner: %v", err)
	}
	token, _, err := signer.Issue("ada@designlab.org")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[1])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + string(sig)

	if _, err := signer.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for tampered signature, got %v", err)
	}

	for _, token := range []string{"", ".", "abc", "abc.", ".def", "!!!.def"} {
		if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: want ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestLinkSignerRejectsCrossSecret(t *testing.T) {
	a, _ := NewLinkSigner("secret-a")
	b, _ := NewLinkSigner("secret-b")

	token, _, err := a.Issue("ada@designlab.org")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken across secrets, got %v", err)
	}
}

func TestLinkSignerExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	signer, err := NewLinkSigner("link-secret", WithLinkTTL(time.Hour), WithLinkClock(clock))
	if err != nil {
		t.Fatalf("NewLinkSigner: %v", err)
	}

	token, expires, err := signer.Issue("ada@designlab.org")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(time.Hour); !expires.Equal(want) {
		t.Fatalf("expiry: want %v, got %v", want, expires)
	}

	// Still inside the window.
	now = now.Add(59 * time.Minute)
	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("Verify inside window: %v", err)
	}

	// Past the window.
	now = now.Add(2 * time.Minute)
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken past expiry, got %v", err)
	}
}

func TestNewLinkSignerRequiresSecret(t *testing.T) {
	if _, err := NewLinkSigner("  "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
