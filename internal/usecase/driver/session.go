package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
)

// Direction marks an envelope as sent or received.
type Direction string

const (
	Outbound Direction = "sent"
	Inbound  Direction = "received"
)

// Session is what a check sees: the link, the codec and a notification log.
type Session struct {
	transport transport.Transport
	codec     *codec.Codec
	watch     time.Duration
	onMessage func(Direction, domain.Envelope)
	logger    *slog.Logger

	// watchOff is set once the board reports it has no notification stream.
	watchOff bool
}

func newSession(t transport.Transport, c *codec.Codec, watch time.Duration, onMessage func(Direction, domain.Envelope), logger *slog.Logger) *Session {
	return &Session{transport: t, codec: c, watch: watch, onMessage: onMessage, logger: logger}
}

// Querier returns the board's HTTP query surface, if the link has one.
func (s *Session) Querier() (transport.Querier, error) {
	q, ok := transport.AsQuerier(s.transport)
	if !ok {
		return nil, domain.NewDomainError("Session.Querier", domain.ErrUnsupported, s.transport.Name()+" link has no query endpoints")
	}
	return q, nil
}

// Send encodes p into a fresh envelope and delivers it. With watch enabled
// the session subscribes before sending and reports what arrives during the
// watch window; notifications do not affect the outcome.
func (s *Session) Send(ctx context.Context, p domain.Payload) error {
	if s.watch <= 0 || s.watchOff {
		return s.send(ctx, p)
	}

	c := s.collectHeld()
	stop, err := s.transport.Subscribe(ctx, c.add)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupported) {
			s.logger.Info("board has no notification stream, watch disabled")
			s.watchOff = true
		} else {
			s.logger.Warn("watch failed", "error", err)
		}
		return s.send(ctx, p)
	}
	sendErr := s.send(ctx, p)
	c.release()
	if sendErr == nil {
		waitWindow(ctx, s.watch)
	}
	if err := stop(); err != nil {
		s.logger.Warn("watch failed", "error", err)
	}
	return sendErr
}

func (s *Session) send(ctx context.Context, p domain.Payload) error {
	env, err := s.codec.Envelope(p)
	if err != nil {
		return err
	}
	raw, err := codec.Marshal(env)
	if err != nil {
		return err
	}
	s.logger.Debug("sending", "type", env.Type, "id", env.ID, "bytes", len(raw))
	if err := s.transport.Send(ctx, raw); err != nil {
		return err
	}
	s.observe(Outbound, env)
	return nil
}

// Listen collects every envelope the board emits during d. Notifications
// that do not decode are logged and skipped.
func (s *Session) Listen(ctx context.Context, d time.Duration) ([]domain.Envelope, error) {
	c := s.collect()
	err := s.transport.Listen(ctx, d, c.add)
	return c.envelopes(), err
}

// Exchange subscribes, sends p, listens for window and fails if the board
// answers with an ERROR envelope. Replies emitted while the send is still in
// flight are included.
func (s *Session) Exchange(ctx context.Context, p domain.Payload, window time.Duration) ([]domain.Envelope, error) {
	c := s.collectHeld()
	stop, err := s.transport.Subscribe(ctx, c.add)
	if err != nil {
		return nil, err
	}
	sendErr := s.send(ctx, p)
	c.release()
	if sendErr == nil {
		waitWindow(ctx, window)
	}
	stopErr := stop()
	got := c.envelopes()
	if sendErr != nil {
		return got, sendErr
	}
	if stopErr != nil {
		return got, stopErr
	}
	return got, firstError(got)
}

// collector decodes notifications and keeps them in arrival order. A held
// collector records envelopes without reporting them until release, so a
// reply that lands while its request is in flight is reported after it.
type collector struct {
	s    *Session
	mu   sync.Mutex
	held bool
	got  []domain.Envelope
}

func (s *Session) collect() *collector { return &collector{s: s} }

func (s *Session) collectHeld() *collector { return &collector{s: s, held: true} }

func (c *collector) add(raw []byte) {
	env, err := codec.Decode(raw)
	if err != nil {
		c.s.logger.Warn("undecodable notification", "error", err, "raw", string(raw))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
	if !c.held {
		c.s.observe(Inbound, env)
	}
}

func (c *collector) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.held {
		return
	}
	c.held = false
	for _, env := range c.got {
		c.s.observe(Inbound, env)
	}
}

func (c *collector) envelopes() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.got...)
}

func waitWindow(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Session) observe(dir Direction, env domain.Envelope) {
	if s.onMessage != nil {
		s.onMessage(dir, env)
	}
}

// firstError turns the first ERROR envelope in envs into ErrCheckFailed.
func firstError(envs []domain.Envelope) error {
	for _, env := range envs {
		if r, ok := env.Data.(domain.ErrorReport); ok {
			return domain.NewDomainError("board", domain.ErrCheckFailed,
				fmt.Sprintf("%s: %s", r.ErrorCode, r.ErrorMessage))
		}
	}
	return nil
}
