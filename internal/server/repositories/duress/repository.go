// Package duress stores which sessions were opened with the duress credential.
// A binding lives exactly as long as its session.
package duress

import "context"

type Repository interface {
	Bind(ctx context.Context, sessionID, accountID string) error
	Unbind(ctx context.Context, sessionID string) error
	UnbindAccount(ctx context.Context, accountID string) (int64, error)
	IsBound(ctx context.Context, sessionID string) (bool, error)
}
