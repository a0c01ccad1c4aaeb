// Package presence mirrors the in-process connection registry into an
// external store so that other processes (dashboards, future gateway peers)
// can observe which identities are live. The registry stays authoritative;
// mirror failures are reported to the caller and otherwise ignored.
package presence

import (
	"context"
	"time"
)

// Mirror publishes online/offline transitions for identities.
type Mirror interface {
	// Online marks an identity as live, refreshing its TTL.
	Online(ctx context.Context, identity string) error

	// Offline removes the liveness record for an identity.
	Offline(ctx context.Context, identity string) error

	// Close releases underlying resources.
	Close() error
}

// TTL returned by mirrors that expire records; informational only.
const DefaultTTL = 60 * time.Second

// Noop is a Mirror that does nothing, used when no mirror is configured.
type Noop struct{}

func (Noop) Online(context.Context, string) error  { return nil }
func (Noop) Offline(context.Context, string) error { return nil }
func (Noop) Close() error                          { return nil }
