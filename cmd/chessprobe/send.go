package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
)

type sendOptions struct {
	msgType string
	data    string
	listen  time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one envelope to a board over HTTP",
		Long: `Wraps --data in a fresh envelope of --type and POSTs it to the board.
The data is not checked against the type's shape, so malformed messages can
be sent on purpose to observe how the board rejects them.`,
		Example: `  chessprobe send --ip 192.168.1.100 --type PING --data '{"message":"hi"}' --listen 2s`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&root.ip, "ip", "", "board IP address")
	cmd.Flags().IntVar(&root.port, "port", domain.DefaultHTTPPort, "board HTTP port")
	cmd.Flags().StringVar(&opts.msgType, "type", "", "message type, e.g. PING or LED_CONTROL")
	cmd.Flags().StringVar(&opts.data, "data", "{}", "JSON object for the data field")
	cmd.Flags().DurationVar(&opts.listen, "listen", 0, "listen on /events for this long after sending")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func runSend(cmd *cobra.Command, root *rootOptions, opts *sendOptions) error {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(opts.data), &data); err != nil || data == nil {
		return domain.NewDomainError("send", domain.ErrInvalidInput, "--data must be a JSON object")
	}
	mt := domain.MessageType(strings.ToUpper(strings.TrimSpace(opts.msgType)))

	a, err := setupApp(cmd, root.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	raw, err := codec.New().EncodeRaw(mt, data)
	if err != nil {
		return err
	}

	t := transport.NewHTTP(transport.HTTPConfig{Host: root.ip, Port: root.port, Timeout: a.cfg.Board.Timeout}, a.logger)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.listen <= 0 {
		fmt.Fprintf(out, "sent     %s\n", raw)
		return t.Send(ctx, raw)
	}

	// Subscribe first: the board answers while the POST is still in flight.
	var mu sync.Mutex
	var replies [][]byte
	stop, err := t.Subscribe(ctx, func(b []byte) {
		mu.Lock()
		replies = append(replies, b)
		mu.Unlock()
	})
	if errors.Is(err, domain.ErrUnsupported) {
		fmt.Fprintln(cmd.ErrOrStderr(), "board has no /events stream; nothing to listen to")
		stop = func() error { return nil }
	} else if err != nil {
		return err
	}

	fmt.Fprintf(out, "sent     %s\n", raw)
	if err := t.Send(ctx, raw); err != nil {
		stop()
		return err
	}
	timer := time.NewTimer(opts.listen)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
	stopErr := stop()

	mu.Lock()
	defer mu.Unlock()
	for _, b := range replies {
		fmt.Fprintf(out, "received %s\n", b)
	}
	return stopErr
}
