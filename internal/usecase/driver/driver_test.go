package driver

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/emulator"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
	"chessprobe/internal/infra/logger"
	"chessprobe/internal/infra/tracer"
)

// fakeTransport records calls and fails sends of selected message types.
type fakeTransport struct {
	mu          sync.Mutex
	connectErr  error
	failTypes   map[domain.MessageType]bool
	subErr      error
	sent        []domain.Envelope
	subscribes  int
	connects    int
	disconnects int
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) Send(_ context.Context, raw []byte) error {
	env, err := codec.Decode(raw)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	if f.failTypes[env.Type] {
		return domain.NewDomainError("fake.Send", domain.ErrTransport, "status 500")
	}
	return nil
}

func (f *fakeTransport) Subscribe(context.Context, func([]byte)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subErr != nil {
		return nil, f.subErr
	}
	return func() error { return nil }, nil
}

func (f *fakeTransport) Listen(ctx context.Context, _ time.Duration, fn func([]byte)) error {
	stop, err := f.Subscribe(ctx, fn)
	if err != nil {
		return err
	}
	return stop()
}

func newDriver(t transport.Transport, cfg Config, hooks Hooks) *Driver {
	return New(t, codec.New(), cfg, hooks, logger.Discard())
}

func passing(name string) Check {
	return Check{Name: name, Run: func(context.Context, *Session) error { return nil }}
}

func TestRunAllPass(t *testing.T) {
	ft := &fakeTransport{}
	report, err := newDriver(ft, Config{}, Hooks{}).Run(context.Background(), []Check{passing("a"), passing("b")})

	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, "fake", report.Target)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 1, ft.disconnects)
}

func TestRunOneFailureDoesNotAbort(t *testing.T) {
	ft := &fakeTransport{failTypes: map[domain.MessageType]bool{domain.TypeLEDControl: true}}
	checks := HTTPSuite(HTTPSuiteOptions{WiFi: domain.WiFiConfig{SSID: "TestNetwork", Password: "pw"}})[:7]

	report, err := newDriver(ft, Config{}, Hooks{}).Run(context.Background(), checks)
	require.NoError(t, err)

	require.Len(t, report.Results, 7)
	assert.Equal(t, 1, report.ExitCode())
	passed, failed := report.Counts()
	assert.Equal(t, 6, passed)
	assert.Equal(t, 1, failed)

	led := report.Results[1]
	assert.Equal(t, "LED Control", led.Name)
	assert.Equal(t, domain.StatusFail, led.Status)
	assert.Equal(t, domain.CodeTransport, led.Code)
	assert.Contains(t, led.Message, "status 500")

	// Both LED sends went out even though the first failed.
	var leds int
	for _, env := range ft.sent {
		if env.Type == domain.TypeLEDControl {
			leds++
		}
	}
	assert.Equal(t, 2, leds)
}

func TestRunPanicIsRecordedAsFail(t *testing.T) {
	ft := &fakeTransport{}
	checks := []Check{
		{Name: "boom", Run: func(context.Context, *Session) error { panic("sensor exploded") }},
		passing("after"),
	}

	report, err := newDriver(ft, Config{}, Hooks{}).Run(context.Background(), checks)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, domain.StatusFail, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Message, "sensor exploded")
	assert.Equal(t, domain.CodeCheckFailed, report.Results[0].Code)
	assert.True(t, report.Results[1].Passed())
	assert.Equal(t, 1, ft.disconnects)
}

func TestRunNilCheckFunction(t *testing.T) {
	report, err := newDriver(&fakeTransport{}, Config{}, Hooks{}).Run(context.Background(), []Check{{Name: "empty"}})
	require.NoError(t, err)
	assert.False(t, report.Passed())
}

func TestRunConnectFailureRunsNoChecks(t *testing.T) {
	ft := &fakeTransport{connectErr: domain.NewDomainError("BLE.Connect", domain.ErrDeviceNotFound, "no NAOchess Board")}
	ran := false
	check := Check{Name: "x", Run: func(context.Context, *Session) error { ran = true; return nil }}

	report, err := newDriver(ft, Config{}, Hooks{}).Run(context.Background(), []Check{check})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceNotFound))
	assert.True(t, domain.IsFatal(err))
	assert.False(t, ran)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, 0, ft.disconnects)
}

func TestRunBLEDiscoveryFailureRunsNoChecks(t *testing.T) {
	radio := transport.NewMockBLEBackend()
	radio.AddDevice("AA:BB", "Some Speaker", -60)
	tr := transport.NewBLE(transport.BLEConfig{ScanTimeout: 10 * time.Millisecond}, radio, slog.Default())

	var started []string
	report, err := newDriver(tr, Config{}, Hooks{OnCheckStart: func(n string) { started = append(started, n) }}).
		Run(context.Background(), BLESuite(BLESuiteOptions{}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceNotFound))
	assert.Empty(t, started)
	assert.Empty(t, report.Results)
}

func TestRunPreflightAbort(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	tr := transport.NewHTTPFromURL(url, 200*time.Millisecond, slog.Default())
	ran := false
	check := Check{Name: "x", Run: func(context.Context, *Session) error { ran = true; return nil }}

	report, err := newDriver(tr, Config{Preflight: true}, Hooks{}).Run(context.Background(), []Check{check})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceUnreachable))
	assert.False(t, ran)
	assert.Empty(t, report.Results)
}

func TestRunInterruptStopsAndDisconnects(t *testing.T) {
	ft := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	checks := []Check{
		{Name: "cancels", Run: func(context.Context, *Session) error { cancel(); return nil }},
		passing("never"),
	}

	report, err := newDriver(ft, Config{CheckDelay: time.Hour}, Hooks{}).Run(ctx, checks)
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 1, ft.disconnects)
}

func TestRunHooksAndSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := tracer.Install(exp)
	defer tp.Shutdown(context.Background())

	var results []domain.CheckResult
	var messages []Direction
	hooks := Hooks{
		OnResult:  func(r domain.CheckResult) { results = append(results, r) },
		OnMessage: func(d Direction, _ domain.Envelope) { messages = append(messages, d) },
	}
	checks := []Check{
		{Name: "send", Run: func(ctx context.Context, s *Session) error { return s.Send(ctx, domain.Ping{Message: "hi"}) }},
		{Name: "fail", Run: func(context.Context, *Session) error { return domain.ErrProtocol }},
	}

	_, err := newDriver(&fakeTransport{}, Config{}, hooks).Run(context.Background(), checks)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, []Direction{Outbound}, messages)

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"check send", "check fail", "probe.run"}, names)
}

func TestWatchDisabledWhenUnsupported(t *testing.T) {
	ft := &fakeTransport{subErr: domain.NewDomainError("HTTP.Subscribe", domain.ErrUnsupported, "no /events")}
	checks := []Check{
		{Name: "one", Run: func(ctx context.Context, s *Session) error { return s.Send(ctx, domain.Ping{}) }},
		{Name: "two", Run: func(ctx context.Context, s *Session) error { return s.Send(ctx, domain.Ping{}) }},
	}

	report, err := newDriver(ft, Config{Watch: time.Millisecond}, Hooks{}).Run(context.Background(), checks)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, 1, ft.subscribes)
	assert.Len(t, ft.sent, 2)
}

func TestWatchSeesReplyToSend(t *testing.T) {
	board := emulator.NewBoard(emulator.Config{}, logger.Discard())
	srv := httptest.NewServer(emulator.NewServer(board, "", logger.Discard()).Handler())
	defer srv.Close()
	tr := transport.NewHTTPFromURL(srv.URL, time.Second, logger.Discard())

	var mu sync.Mutex
	var seen []string
	hooks := Hooks{OnMessage: func(d Direction, env domain.Envelope) {
		mu.Lock()
		seen = append(seen, string(d)+" "+string(env.Type))
		mu.Unlock()
	}}
	checks := []Check{
		{Name: "ping", Run: func(ctx context.Context, s *Session) error { return s.Send(ctx, domain.Ping{Message: "hi"}) }},
	}

	report, err := newDriver(tr, Config{Watch: 300 * time.Millisecond}, hooks).Run(context.Background(), checks)
	require.NoError(t, err)
	assert.True(t, report.Passed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sent PING", "received PONG"}, seen)
}

func TestExchangeReportsReplyAfterRequest(t *testing.T) {
	board := emulator.NewBoard(emulator.Config{}, logger.Discard())
	radio := emulator.NewBLELink(board, "")
	tr := transport.NewBLE(transport.BLEConfig{}, radio, logger.Discard())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	var seen []Direction
	s := newSession(tr, codec.New(), 0, func(d Direction, _ domain.Envelope) { seen = append(seen, d) }, logger.Discard())
	_, err := s.Listen(context.Background(), time.Millisecond)
	require.NoError(t, err)
	seen = nil

	got, err := s.Exchange(context.Background(), domain.Ping{Message: "hi"}, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypePong, got[0].Type)
	assert.Equal(t, []Direction{Outbound, Inbound}, seen)
}

func TestHTTPSuiteAgainstEmulator(t *testing.T) {
	board := emulator.NewBoard(emulator.Config{}, logger.Discard())
	srv := httptest.NewServer(emulator.NewServer(board, "", logger.Discard()).Handler())
	defer srv.Close()

	tr := transport.NewHTTPFromURL(srv.URL, time.Second, logger.Discard())
	checks := HTTPSuite(HTTPSuiteOptions{WiFi: domain.WiFiConfig{SSID: "TestNetwork", Password: "testpassword", SecurityType: "WPA2"}})

	report, err := newDriver(tr, Config{Preflight: true}, Hooks{}).Run(context.Background(), checks)
	require.NoError(t, err)
	require.Len(t, report.Results, 9)
	for _, r := range report.Results {
		assert.Truef(t, r.Passed(), "%s: %s", r.Name, r.Message)
	}
	assert.Equal(t, 0, report.ExitCode())

	// GAME_STATE then MOVE_DETECTED leave the board on the pushed position.
	assert.Equal(t, "e2e4", board.GameState().LastMove)
	assert.Equal(t, "Black", board.GameState().CurrentPlayer)
}

func TestBLESuiteAgainstEmulator(t *testing.T) {
	board := emulator.NewBoard(emulator.Config{}, logger.Discard())
	radio := emulator.NewBLELink(board, "")
	tr := transport.NewBLE(transport.BLEConfig{}, radio, logger.Discard())

	var inbound []domain.MessageType
	hooks := Hooks{OnMessage: func(d Direction, env domain.Envelope) {
		if d == Inbound {
			inbound = append(inbound, env.Type)
		}
	}}
	opts := BLESuiteOptions{
		WiFi:           domain.WiFiConfig{SSID: "TestNetwork", Password: "TestPassword"},
		GreetingWindow: 20 * time.Millisecond,
		ReplyWindow:    20 * time.Millisecond,
		WiFiWindow:     20 * time.Millisecond,
	}

	report, err := newDriver(tr, Config{}, hooks).Run(context.Background(), BLESuite(opts))
	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	assert.True(t, report.Passed(), "%+v", report.Results)
	assert.Contains(t, inbound, domain.TypeDeviceInfo)
	assert.Contains(t, inbound, domain.TypePong)
	assert.False(t, radio.IsConnected(emulator.DefaultBLEAddress))
}

func TestBLESuiteWiFiFailureIsReported(t *testing.T) {
	board := emulator.NewBoard(emulator.Config{ReachableSSIDs: []string{"HomeNet"}}, logger.Discard())
	radio := emulator.NewBLELink(board, "")
	tr := transport.NewBLE(transport.BLEConfig{}, radio, logger.Discard())
	opts := BLESuiteOptions{
		WiFi:           domain.WiFiConfig{SSID: "TestNetwork", Password: "TestPassword"},
		GreetingWindow: 20 * time.Millisecond,
		ReplyWindow:    20 * time.Millisecond,
		WiFiWindow:     20 * time.Millisecond,
	}

	report, err := newDriver(tr, Config{}, Hooks{}).Run(context.Background(), BLESuite(opts))
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	wifi := report.Results[2]
	assert.Equal(t, "WiFi Config", wifi.Name)
	assert.Equal(t, domain.StatusFail, wifi.Status)
	assert.Equal(t, domain.CodeCheckFailed, wifi.Code)
	assert.Contains(t, wifi.Message, domain.ErrorCodeWiFiFailed)
	assert.True(t, report.Results[3].Passed(), "LED Control runs after a failure")
}

func TestSessionQuerierUnsupportedOverBLE(t *testing.T) {
	s := newSession(&fakeTransport{}, codec.New(), 0, nil, logger.Discard())
	_, err := s.Querier()
	assert.True(t, errors.Is(err, domain.ErrUnsupported))
}
