// Package driver runs an ordered list of named checks against one board and
// aggregates their outcomes into a report.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
	"chessprobe/internal/infra/tracer"
)

// Check is one named step of a suite. Run returns nil on success; any error
// (or a panic) marks the check FAIL.
type Check struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// Config controls how a run is sequenced.
type Config struct {
	// CheckDelay is the pause between consecutive checks.
	CheckDelay time.Duration
	// Preflight pings the board through its Querier before the first check.
	Preflight bool
	// Watch listens for notifications after every Send. 0 = off.
	Watch time.Duration
}

// Hooks lets the caller observe progress. All fields are optional.
type Hooks struct {
	OnCheckStart func(name string)
	OnResult     func(domain.CheckResult)
	OnMessage    func(Direction, domain.Envelope)
}

// Driver executes checks serially over a single transport.
type Driver struct {
	transport transport.Transport
	codec     *codec.Codec
	cfg       Config
	hooks     Hooks
	logger    *slog.Logger
}

// New creates a Driver. A nil codec gets a fresh one.
func New(t transport.Transport, c *codec.Codec, cfg Config, hooks Hooks, logger *slog.Logger) *Driver {
	if c == nil {
		c = codec.New()
	}
	return &Driver{transport: t, codec: c, cfg: cfg, hooks: hooks, logger: logger}
}

// Run connects, runs checks in order, and disconnects on every path.
//
// The returned error is non-nil only when the run could not start (discovery
// or preflight failure, in which case the report has no results) or was
// interrupted (the report holds the checks that completed).
func (d *Driver) Run(ctx context.Context, checks []Check) (*domain.Report, error) {
	report := &domain.Report{Target: d.transport.Name(), StartedAt: time.Now()}

	ctx, span := tracer.StartSpan(ctx, "probe.run", trace.WithAttributes(
		tracer.StringAttr("probe.transport", d.transport.Name()),
		tracer.IntAttr("probe.checks", len(checks)),
	))
	defer span.End()

	if err := d.transport.Connect(ctx); err != nil {
		tracer.RecordError(span, err)
		return report, domain.WrapOp("driver.Connect", err)
	}
	defer func() {
		if err := d.transport.Disconnect(); err != nil {
			d.logger.Warn("disconnect failed", "transport", d.transport.Name(), "error", err)
		}
	}()

	if d.cfg.Preflight {
		if err := d.preflight(ctx); err != nil {
			tracer.RecordError(span, err)
			return report, err
		}
	}

	sess := newSession(d.transport, d.codec, d.cfg.Watch, d.hooks.OnMessage, d.logger)
	for i, c := range checks {
		if i > 0 {
			if err := sleepCtx(ctx, d.cfg.CheckDelay); err != nil {
				return report, domain.WrapOp("driver.Run", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return report, domain.WrapOp("driver.Run", err)
		}
		report.Results = append(report.Results, d.runCheck(ctx, sess, c))
	}

	passed, failed := report.Counts()
	d.logger.Info("run finished", "transport", d.transport.Name(), "passed", passed, "failed", failed)
	if failed > 0 {
		span.SetAttributes(tracer.IntAttr("probe.failed", failed))
	} else {
		tracer.SetOK(span)
	}
	return report, nil
}

func (d *Driver) preflight(ctx context.Context) error {
	q, ok := transport.AsQuerier(d.transport)
	if !ok {
		return nil
	}
	if err := q.Ping(ctx); err != nil {
		d.logger.Error("preflight ping failed", "error", err)
		return domain.NewDomainError("driver.Preflight", domain.ErrDeviceUnreachable, err.Error())
	}
	return nil
}

func (d *Driver) runCheck(ctx context.Context, sess *Session, c Check) domain.CheckResult {
	if d.hooks.OnCheckStart != nil {
		d.hooks.OnCheckStart(c.Name)
	}
	ctx, span := tracer.StartSpan(ctx, "check "+c.Name, trace.WithAttributes(
		tracer.StringAttr("check.name", c.Name),
	))
	defer span.End()

	start := time.Now()
	err := invoke(ctx, sess, c)
	res := domain.CheckResult{Name: c.Name, Status: domain.StatusPass, Duration: time.Since(start)}
	span.SetAttributes(tracer.DurationAttr("check.duration_ms", res.Duration))

	if err != nil {
		res.Status = domain.StatusFail
		res.Message = err.Error()
		res.Code = domain.ErrorCodeOf(err)
		tracer.RecordError(span, err)
		d.logger.Warn("check failed", "check", c.Name, "code", res.Code, "error", err)
	} else {
		tracer.SetOK(span)
		d.logger.Info("check passed", "check", c.Name, "duration", res.Duration)
	}

	if d.hooks.OnResult != nil {
		d.hooks.OnResult(res)
	}
	return res
}

// invoke runs one check and turns a panic into an error.
func invoke(ctx context.Context, sess *Session, c Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewDomainError("check "+c.Name, domain.ErrCheckFailed, fmt.Sprintf("panic: %v", r))
		}
	}()
	if c.Run == nil {
		return domain.NewDomainError("check "+c.Name, domain.ErrCheckFailed, "no check function")
	}
	return c.Run(ctx, sess)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsInterrupted reports whether err came from a cancelled run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
