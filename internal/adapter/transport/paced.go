package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"chessprobe/internal/domain"
)

// Paced spaces consecutive sends at least interval apart. The board's
// receiver handles one message at a time and drops bursts.
type Paced struct {
	Transport
	limiter *rate.Limiter
}

// NewPaced wraps inner. A non-positive interval disables pacing.
func NewPaced(inner Transport, interval time.Duration) *Paced {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Paced{Transport: inner, limiter: rate.NewLimiter(limit, 1)}
}

// Send waits for the pacing slot, then delegates.
func (p *Paced) Send(ctx context.Context, payload []byte) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.NewDomainError("Paced.Send", domain.ErrTransport, err.Error())
	}
	return p.Transport.Send(ctx, payload)
}

// Unwrap returns the wrapped transport.
func (p *Paced) Unwrap() Transport { return p.Transport }
