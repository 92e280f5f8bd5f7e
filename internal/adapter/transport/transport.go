// Package transport moves encoded envelopes between the prober and a board.
package transport

import (
	"context"
	"time"

	"chessprobe/internal/domain"
)

// Transport is a connected link to one board.
type Transport interface {
	// Name identifies the link kind in logs and reports ("http", "ble").
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	// Send delivers one encoded envelope.
	Send(ctx context.Context, payload []byte) error
	// Subscribe starts delivering notifications to fn and returns once the
	// subscription is live, so a Send issued afterwards cannot race its
	// reply. The returned stop func ends delivery; fn is not called after
	// stop returns.
	Subscribe(ctx context.Context, fn func([]byte)) (stop func() error, err error)
	// Listen invokes fn for every notification received during d, then
	// stops. It returns early without error if ctx is cancelled.
	Listen(ctx context.Context, d time.Duration, fn func([]byte)) error
}

// Querier is the read-only side of the board's HTTP surface.
type Querier interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (string, error)
	Game(ctx context.Context) (domain.Envelope, error)
}

// waitWindow blocks for d or until ctx is done. A cancelled ctx is not an
// error for listeners: the caller asked to stop.
func waitWindow(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// listenFor runs one subscription for the window d.
func listenFor(ctx context.Context, t Transport, d time.Duration, fn func([]byte)) error {
	stop, err := t.Subscribe(ctx, fn)
	if err != nil {
		return err
	}
	waitWindow(ctx, d)
	return stop()
}

// AsQuerier finds a Querier in t or in the transports it wraps.
func AsQuerier(t Transport) (Querier, bool) {
	for t != nil {
		if q, ok := t.(Querier); ok {
			return q, true
		}
		u, ok := t.(interface{ Unwrap() Transport })
		if !ok {
			return nil, false
		}
		t = u.Unwrap()
	}
	return nil, false
}
