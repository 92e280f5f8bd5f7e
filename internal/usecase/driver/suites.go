package driver

import (
	"context"
	"errors"
	"strings"
	"time"

	"chessprobe/internal/domain"
)

// HTTPSuiteOptions parameterizes the HTTP suite.
type HTTPSuiteOptions struct {
	WiFi domain.WiFiConfig
	// StepDelay separates the two sends of the LED and haptic checks.
	StepDelay time.Duration
}

// HTTPSuite returns the nine checks run against a board's REST interface.
func HTTPSuite(opts HTTPSuiteOptions) []Check {
	send := func(p domain.Payload) func(context.Context, *Session) error {
		return func(ctx context.Context, s *Session) error { return s.Send(ctx, p) }
	}
	return []Check{
		{Name: "WiFi Configuration", Run: send(opts.WiFi)},
		{Name: "LED Control", Run: sendSequence(opts.StepDelay,
			domain.LEDControl{Pattern: "MOVE_HIGHLIGHT", Squares: []string{"e2", "e4"}, Color: "blue", Duration: 2000, Intensity: 100},
			domain.LEDControl{Pattern: "CHECK", Color: "red", Duration: 500, Intensity: 80},
		)},
		{Name: "Haptic Feedback", Run: sendSequence(opts.StepDelay,
			domain.HapticFeedback{Pattern: "MOVE", Duration: 100, Intensity: 50},
			domain.HapticFeedback{Pattern: "CAPTURE", Duration: 150, Intensity: 75},
		)},
		{Name: "Game State", Run: send(domain.GameState{
			FEN:           "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
			CurrentPlayer: "Black",
			LastMove:      "e2e4",
		})},
		{Name: "Move Detection", Run: send(domain.MoveDetected{
			FromSquare: "e2", ToSquare: "e4", PieceType: "pawn",
		})},
		{Name: "Device Info", Run: send(domain.DeviceInfoRequest{Request: "DEVICE_INFO"})},
		{Name: "Setup Status", Run: send(domain.SetupStatus{
			Status: domain.SetupScanning, Message: "Looking for chessboard...",
		})},
		{Name: "System Status", Run: checkSystemStatus},
		{Name: "Game State Query", Run: checkGameQuery},
	}
}

// sendSequence sends every payload even when an earlier one fails, pausing
// step between sends, and joins the failures.
func sendSequence(step time.Duration, payloads ...domain.Payload) func(context.Context, *Session) error {
	return func(ctx context.Context, s *Session) error {
		var errs []error
		for i, p := range payloads {
			if i > 0 {
				if err := sleepCtx(ctx, step); err != nil {
					return err
				}
			}
			if err := s.Send(ctx, p); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func checkSystemStatus(ctx context.Context, s *Session) error {
	q, err := s.Querier()
	if err != nil {
		return err
	}
	text, err := q.Status(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("board status", "status", strings.TrimSpace(text))
	return nil
}

func checkGameQuery(ctx context.Context, s *Session) error {
	q, err := s.Querier()
	if err != nil {
		return err
	}
	env, err := q.Game(ctx)
	if err != nil {
		return err
	}
	gs, ok := env.Data.(domain.GameState)
	if !ok {
		return domain.NewDomainError("check Game State Query", domain.ErrProtocol, "expected GAME_STATE, got "+string(env.Type))
	}
	s.observe(Inbound, env)
	s.logger.Info("board game state", "fen", gs.FEN, "player", gs.CurrentPlayer, "lastMove", gs.LastMove)
	return nil
}

// BLESuiteOptions parameterizes the BLE suite.
type BLESuiteOptions struct {
	WiFi           domain.WiFiConfig
	GreetingWindow time.Duration
	ReplyWindow    time.Duration
	WiFiWindow     time.Duration
}

// BLESuite returns the four checks run over the board's characteristic. A
// check passes when its write succeeds and no ERROR arrives in its window.
func BLESuite(opts BLESuiteOptions) []Check {
	exchange := func(p domain.Payload, window time.Duration) func(context.Context, *Session) error {
		return func(ctx context.Context, s *Session) error {
			_, err := s.Exchange(ctx, p, window)
			return err
		}
	}
	return []Check{
		{Name: "Device Info", Run: func(ctx context.Context, s *Session) error {
			got, err := s.Listen(ctx, opts.GreetingWindow)
			if err != nil {
				return err
			}
			if !hasType(got, domain.TypeDeviceInfo) {
				s.logger.Warn("no DEVICE_INFO greeting received", "window", opts.GreetingWindow)
			}
			return firstError(got)
		}},
		{Name: "Ping", Run: exchange(domain.Ping{Message: "Hello from chessprobe"}, opts.ReplyWindow)},
		{Name: "WiFi Config", Run: exchange(opts.WiFi, opts.WiFiWindow)},
		{Name: "LED Control", Run: exchange(domain.LEDControl{
			Pattern: "blink", Squares: []string{"e4", "d4"}, Color: "red", Duration: 1000, Intensity: 255,
		}, opts.ReplyWindow)},
	}
}

func hasType(envs []domain.Envelope, mt domain.MessageType) bool {
	for _, env := range envs {
		if env.Type == mt {
			return true
		}
	}
	return false
}
