package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"chessprobe/internal/domain"
)

// Default breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 3
	defaultBreakerTimeout     time.Duration = 15 * time.Second
)

// BreakerConfig configures the send circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed sends before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe send is let through.
	Timeout time.Duration
}

// Breaker fails sends fast once the board has stopped answering. It never
// retries: a rejected send is returned to the check as an ordinary failure.
type Breaker struct {
	Transport
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Transport, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "transport:" + inner.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Malformed payloads are the caller's fault, not the board's.
			return err == nil || errors.Is(err, domain.ErrSerialization)
		},
	})
	return &Breaker{Transport: inner, breaker: cb}
}

// Send routes the call through the breaker.
func (b *Breaker) Send(ctx context.Context, payload []byte) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.Transport.Send(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewDomainError("Breaker.Send", domain.ErrTransport, "circuit open: "+err.Error())
	}
	return err
}

// State reports the breaker state for logs.
func (b *Breaker) State() string { return b.breaker.State().String() }

// Unwrap returns the wrapped transport.
func (b *Breaker) Unwrap() Transport { return b.Transport }
