package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/domain"
)

// DefaultHTTPTimeout bounds every HTTP request to the board.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
	// Client overrides the HTTP client. Timeout still applies per request.
	Client *http.Client
}

// HTTPTransport talks to the board's REST endpoints.
type HTTPTransport struct {
	base    string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTP creates an HTTP transport for http://host:port.
func NewHTTP(cfg HTTPConfig, logger *slog.Logger) *HTTPTransport {
	port := cfg.Port
	if port == 0 {
		port = domain.DefaultHTTPPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		base:    "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		timeout: timeout,
		client:  client,
		logger:  logger,
	}
}

// NewHTTPFromURL creates an HTTP transport for an explicit base URL, such as
// an httptest server.
func NewHTTPFromURL(base string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPTransport{
		base:    strings.TrimRight(base, "/"),
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (t *HTTPTransport) Name() string { return "http" }

// BaseURL returns the board address the transport talks to.
func (t *HTTPTransport) BaseURL() string { return t.base }

// Connect is a no-op: HTTP is stateless. Reachability is established by Ping.
func (t *HTTPTransport) Connect(context.Context) error { return nil }

// Disconnect releases idle keep-alive connections.
func (t *HTTPTransport) Disconnect() error {
	t.client.CloseIdleConnections()
	return nil
}

// Send POSTs the encoded envelope to /message. Only 200 counts as accepted.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	body, err := t.do(ctx, http.MethodPost, "/message", payload)
	if err != nil {
		return domain.WrapOp("HTTP.Send", err)
	}
	t.logger.Debug("message accepted", "response", strings.TrimSpace(string(body)))
	return nil
}

// Ping checks GET /ping.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodGet, "/ping", nil)
	return domain.WrapOp("HTTP.Ping", err)
}

// Status returns the plain-text body of GET /status.
func (t *HTTPTransport) Status(ctx context.Context) (string, error) {
	body, err := t.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return "", domain.WrapOp("HTTP.Status", err)
	}
	return string(body), nil
}

// Game fetches GET /game and decodes the GAME_STATE envelope it returns.
func (t *HTTPTransport) Game(ctx context.Context) (domain.Envelope, error) {
	body, err := t.do(ctx, http.MethodGet, "/game", nil)
	if err != nil {
		return domain.Envelope{}, domain.WrapOp("HTTP.Game", err)
	}
	env, err := codec.Decode(body)
	if err != nil {
		return domain.Envelope{}, domain.WrapOp("HTTP.Game", err)
	}
	return env, nil
}

// Subscribe opens the board's /events WebSocket and returns once the
// handshake has completed. Boards without the endpoint yield ErrUnsupported.
func (t *HTTPTransport) Subscribe(ctx context.Context, fn func([]byte)) (func() error, error) {
	// The connection lives as long as streamCtx; only the handshake is timed.
	streamCtx, cancel := context.WithCancel(ctx)
	handshake := time.AfterFunc(t.timeout, cancel)

	url := "ws" + strings.TrimPrefix(t.base, "http") + "/events"
	ws, resp, err := websocket.Dial(streamCtx, url, &websocket.DialOptions{HTTPClient: t.client})
	if !handshake.Stop() {
		if err == nil {
			ws.Close(websocket.StatusNormalClosure, "")
		}
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed) {
			return nil, domain.NewDomainError("HTTP.Subscribe", domain.ErrUnsupported, "board has no /events stream")
		}
		return nil, domain.NewDomainError("HTTP.Subscribe", transportErr(err), url)
	}

	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := ws.Read(streamCtx)
			if err != nil {
				if streamCtx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					readErr = domain.NewDomainError("HTTP.Subscribe", domain.ErrTransport, err.Error())
				}
				return
			}
			fn(data)
		}
	}()

	return func() error {
		cancel()
		<-done
		ws.Close(websocket.StatusNormalClosure, "")
		return readErr
	}, nil
}

// Listen streams notifications from the board's /events WebSocket for d.
func (t *HTTPTransport) Listen(ctx context.Context, d time.Duration, fn func([]byte)) error {
	return domain.WrapOp("HTTP.Listen", listenFor(ctx, t, d, fn))
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			domain.ErrTransport, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// transportErr classifies a client error. Timeouts carry both ErrTransport
// and ErrTimeout.
func transportErr(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w: %v", domain.ErrTransport, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrTransport, err)
}

var (
	_ Transport = (*HTTPTransport)(nil)
	_ Querier   = (*HTTPTransport)(nil)
)
