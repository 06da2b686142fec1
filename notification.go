package notifier

import (
	"context"
	"time"
)

// Mailer is the interface that wraps the outbound email transport
type Mailer interface {
	SendEmail(ctx context.Context, msg *Message) (*Receipt, error)
}

// Message is one outbound email. An empty To means the configured sender address.
type Message struct {
	Subject string
	HTML    string
	Text    string
	To      string
	Bcc     []string
}

// Receipt is what the provider acknowledged for a message
type Receipt struct {
	Provider string `json:"provider"`
	ID       string `json:"id,omitempty"`
	Accepted int    `json:"accepted"`
}

// Payload is a composed notification
type Payload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Result is the outcome of a broadcast
type Result struct {
	Sent   bool   `json:"sent"`
	Count  int    `json:"count,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FlushSummary summarizes one flush run
type FlushSummary struct {
	Sent          int       `json:"sent"`
	MagazinesSent int       `json:"magazinesSent"`
	Skipped       int       `json:"skipped"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Locker guards a flush across processes.
type Locker interface {
	// TryLock returns ok=false without error when somebody else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
