package mail

import (
	"context"

	"designlab.org/internal/obs"
)

// Sender delivers sign-in links. Delivery transport is pluggable; the
// gateway only needs fire-and-forget semantics.
type Sender interface {
	SendLink(ctx context.Context, email, link string) error
}

// LogSender writes the link to the operational log instead of sending mail.
// Used outside production, where the issuance endpoint also returns the link
// directly.
type LogSender struct{}

func (LogSender) SendLink(ctx context.Context, email, link string) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"msg":   "magic_link_issued",
		"email": email,
		"link":  link,
	})
	return nil
}
