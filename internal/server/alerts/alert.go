// Package alerts delivers notifications (coercion alerts, canary triggers,
// new-device logins) in the background. Delivery is best effort: there is no
// retry and no persistence, and the code that raised an alert never learns
// whether it was delivered.
package alerts

import (
	"context"
	"time"
)

type Kind string

const (
	KindCoercion Kind = "coercion"
	KindCanary   Kind = "canary"
	KindLogin    Kind = "login"
)

// Alert is one outbound notification. It must never carry hashes, tokens or
// ciphertext.
type Alert struct {
	Kind      Kind
	AccountID string
	Recipient string
	Subject   string
	Body      string
	Fields    map[string]string
	CreatedAt time.Time
}

// Sender delivers a single alert.
type Sender interface {
	Send(ctx context.Context, a Alert) error
}

// Submitter accepts alerts for background delivery without blocking.
// It reports false when the alert was dropped.
type Submitter interface {
	Submit(a Alert) bool
}
