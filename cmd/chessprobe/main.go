package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
	"chessprobe/internal/infra/config"
	"chessprobe/internal/infra/logger"
	"chessprobe/internal/infra/tracer"
	"chessprobe/internal/usecase/driver"
)

// exitCode is returned by commands that end with a specific process status
// after already reporting to the user.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps the outcome to a process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ec exitCode
	if errors.As(err, &ec) {
		return int(ec)
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

type rootOptions struct {
	configPath string
	ip         string
	port       int
	bluetooth  bool
	watch      time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "chessprobe",
		Short: "Protocol prober for the NAOchess smart chessboard",
		Long: `chessprobe exercises the NAOchess board's JSON envelope protocol and
reports which checks pass. The root command runs the HTTP suite against a
board on the LAN; subcommands cover Bluetooth, one-off sends, board
discovery and a local board emulator.

Exit status is 0 when every check passes and 1 otherwise.`,
		Example: `  chessprobe --ip 192.168.1.100
  chessprobe --ip 192.168.1.100 --port 8080 --watch 2s
  chessprobe ble
  chessprobe emulate --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHTTPSuite(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.ip, "ip", "", "board IP address")
	cmd.Flags().IntVar(&opts.port, "port", domain.DefaultHTTPPort, "board HTTP port")
	cmd.Flags().BoolVar(&opts.bluetooth, "bluetooth", false, "test over Bluetooth instead (see the ble command)")
	cmd.Flags().DurationVar(&opts.watch, "watch", 0, "listen on /events for this long after each send")

	cmd.AddCommand(
		newBLECmd(opts),
		newSendCmd(opts),
		newEmulateCmd(opts),
		newDiscoverCmd(opts),
		newEncryptCmd(),
	)
	return cmd
}

func runHTTPSuite(cmd *cobra.Command, opts *rootOptions) error {
	stderr := cmd.ErrOrStderr()
	if opts.bluetooth {
		fmt.Fprintln(stderr, "Bluetooth checks are run by the ble command: chessprobe ble")
		return exitCode(1)
	}

	// Flag validation happens before config, logging or any network access.
	if opts.ip == "" {
		fmt.Fprintln(stderr, "Error: please provide either --ip or --bluetooth")
		cmd.SetOut(stderr)
		_ = cmd.Usage()
		return exitCode(1)
	}

	a, err := setupApp(cmd, opts.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	cfg.Board.Host = opts.ip
	if cmd.Flags().Changed("port") || cfg.Board.Port == 0 {
		cfg.Board.Port = opts.port
	}
	if cmd.Flags().Changed("watch") {
		cfg.Board.Watch = opts.watch
	}

	httpT := transport.NewHTTP(transport.HTTPConfig{
		Host:    cfg.Board.Host,
		Port:    cfg.Board.Port,
		Timeout: cfg.Board.Timeout,
	}, a.logger)
	t := a.decorate(httpT)

	out := newReportWriter(cmd.OutOrStdout())
	out.header("NAOchess Chessboard Protocol Test", httpT.BaseURL())

	checks := driver.HTTPSuite(driver.HTTPSuiteOptions{
		WiFi:      wifiPayload(cfg.Suite),
		StepDelay: cfg.Board.CheckDelay,
	})
	d := driver.New(t, codec.New(), driver.Config{
		CheckDelay: cfg.Board.CheckDelay,
		Preflight:  cfg.Board.Preflight,
		Watch:      cfg.Board.Watch,
	}, out.hooks(), a.logger)

	report, err := d.Run(cmd.Context(), checks)
	return out.finish(report, err)
}

// app bundles what every command needs after config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	close  func()
}

func setupApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	shutdown, err := tracer.Setup(cmd.Context(), cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("setup tracer: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: log,
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
			closeLog()
		},
	}, nil
}

// decorate wraps t with pacing and, when enabled, the circuit breaker.
func (a *app) decorate(t transport.Transport) transport.Transport {
	if a.cfg.Board.SendInterval > 0 {
		t = transport.NewPaced(t, a.cfg.Board.SendInterval)
	}
	if a.cfg.Breaker.Enabled {
		t = transport.NewBreaker(t, transport.BreakerConfig{
			MaxFailures: a.cfg.Breaker.MaxFailures,
			Timeout:     a.cfg.Breaker.Timeout,
		}, a.logger)
	}
	return t
}

func wifiPayload(s config.SuiteConfig) domain.WiFiConfig {
	return domain.WiFiConfig{SSID: s.WiFiSSID, Password: s.WiFiPassword, SecurityType: s.WiFiSecurity}
}
