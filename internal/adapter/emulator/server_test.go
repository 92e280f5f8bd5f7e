package emulator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
)

func startEmulator(t *testing.T, cfg Config) (*Board, *transport.HTTPTransport) {
	t.Helper()
	board := NewBoard(cfg, slog.Default())
	srv := httptest.NewServer(NewServer(board, "", slog.Default()).Handler())
	t.Cleanup(srv.Close)
	return board, transport.NewHTTPFromURL(srv.URL, time.Second, slog.Default())
}

func TestServerMessageAccepted(t *testing.T) {
	board, tr := startEmulator(t, Config{})
	raw := encode(t, domain.HapticFeedback{Pattern: "MOVE", Duration: 100, Intensity: 50})

	require.NoError(t, tr.Send(context.Background(), raw))
	require.Len(t, board.Received(), 1)
	assert.Equal(t, domain.TypeHapticFeedback, board.Received()[0].Type)
}

func TestServerEmptyBodyRejected(t *testing.T) {
	board := NewBoard(Config{}, slog.Default())
	srv := httptest.NewServer(NewServer(board, "", slog.Default()).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	tr := transport.NewHTTPFromURL(srv.URL, time.Second, slog.Default())
	err = tr.Send(context.Background(), []byte{})
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestServerQueries(t *testing.T) {
	board, tr := startEmulator(t, Config{})
	ctx := context.Background()

	require.NoError(t, tr.Ping(ctx))

	gs := domain.GameState{FEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", CurrentPlayer: "black", LastMove: "e2e4"}
	require.NoError(t, tr.Send(ctx, encode(t, gs)))

	status, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, status, "Current Player: black")

	env, err := tr.Game(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeGameState, env.Type)
	assert.Equal(t, gs, env.Data)
	assert.Equal(t, gs, board.GameState())
}

func TestServerEventsStream(t *testing.T) {
	board, tr := startEmulator(t, Config{})

	var mu sync.Mutex
	var got []domain.MessageType
	done := make(chan error, 1)
	go func() {
		done <- tr.Listen(context.Background(), 500*time.Millisecond, func(raw []byte) {
			env, err := codec.Decode(raw)
			if err != nil {
				return
			}
			mu.Lock()
			got = append(got, env.Type)
			mu.Unlock()
		})
	}()

	// Wait for the stream subscriber to register before emitting.
	require.Eventually(t, func() bool {
		board.mu.Lock()
		defer board.mu.Unlock()
		return len(board.subs) > 0
	}, time.Second, 10*time.Millisecond)

	board.Greet()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.MessageType{domain.TypeDeviceInfo, domain.TypeSetupStatus}, got)
}

func TestServerEventsIncludeReplyToMessage(t *testing.T) {
	_, tr := startEmulator(t, Config{})

	replies := make(chan domain.MessageType, 4)
	stop, err := tr.Subscribe(context.Background(), func(raw []byte) {
		if env, err := codec.Decode(raw); err == nil {
			replies <- env.Type
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, tr.Send(context.Background(), encode(t, domain.Ping{Message: "hi"})))
	select {
	case mt := <-replies:
		assert.Equal(t, domain.TypePong, mt)
	case <-time.After(2 * time.Second):
		t.Fatal("PONG not streamed")
	}
}

func TestBLELinkGreetsAndAnswers(t *testing.T) {
	board := NewBoard(Config{}, slog.Default())
	radio := NewBLELink(board, "")
	tr := transport.NewBLE(transport.BLEConfig{}, radio, slog.Default())
	ctx := context.Background()

	require.NoError(t, tr.Connect(ctx))
	assert.Contains(t, board.StatusText(0), "Bluetooth Connected: Yes")

	var got []domain.Envelope
	collect := func(raw []byte) {
		env, err := codec.Decode(raw)
		require.NoError(t, err)
		got = append(got, env)
	}

	require.NoError(t, tr.Listen(ctx, 20*time.Millisecond, collect))
	require.Len(t, got, 2)
	assert.Equal(t, domain.TypeDeviceInfo, got[0].Type)
	assert.Equal(t, "Chessboard ready for connection", got[1].Data.(domain.SetupStatus).Message)

	got = nil
	require.NoError(t, tr.Send(ctx, encode(t, domain.Ping{Message: "Hello from Go test"})))
	require.NoError(t, tr.Listen(ctx, 20*time.Millisecond, collect))
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypePong, got[0].Type)

	require.NoError(t, tr.Disconnect())
	assert.Contains(t, board.StatusText(0), "Bluetooth Connected: No")
}

func TestServerRecoversFromHandlerPanic(t *testing.T) {
	h := logRequests(slog.Default(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("flash corrupted")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerSerializesRequests(t *testing.T) {
	one := &serialized{}
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	h := one.wrap(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestServerListenStartStop(t *testing.T) {
	srv := NewServer(NewBoard(Config{}, slog.Default()), "127.0.0.1:0", slog.Default())
	require.NoError(t, srv.Listen())
	require.NotEmpty(t, srv.BoundAddr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	tr := transport.NewHTTPFromURL("http://"+srv.BoundAddr(), time.Second, slog.Default())
	require.NoError(t, tr.Ping(context.Background()))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
