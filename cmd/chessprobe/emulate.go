package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chessprobe/internal/adapter/discovery"
	"chessprobe/internal/adapter/emulator"
	"chessprobe/internal/domain"
	"chessprobe/internal/infra/config"
)

type emulateOptions struct {
	addr      string
	advertise bool
	ssids     []string
}

func newEmulateCmd(root *rootOptions) *cobra.Command {
	opts := &emulateOptions{}
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Serve an emulated board over HTTP until interrupted",
		Long: `Starts an in-process NAOchess board that answers /message, /ping,
/status, /game and streams its notifications on /events. With --advertise
it also registers itself over mDNS so discover can find it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmulator(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&opts.advertise, "advertise", false, "advertise the board over mDNS")
	cmd.Flags().StringSliceVar(&opts.ssids, "reachable-ssid", nil, "SSIDs the board can join (default: any)")
	return cmd
}

func runEmulator(cmd *cobra.Command, root *rootOptions, opts *emulateOptions) error {
	a, err := setupApp(cmd, root.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg.Emulator
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.advertise {
		cfg.Advertise = true
	}
	if len(opts.ssids) > 0 {
		cfg.ReachableSSIDs = opts.ssids
	}

	ctx := cmd.Context()
	log := a.logger.With("component", "emulator")
	board := emulator.NewBoard(emulatorConfig(cfg), log)
	srv := emulator.NewServer(board, cfg.Addr, log)
	if err := srv.Listen(); err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(ctx) }()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	}()

	go board.Run(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), "Emulated board listening on http://%s\n", srv.BoundAddr())

	if cfg.Advertise {
		port, err := boundPort(srv.BoundAddr())
		if err != nil {
			return err
		}
		name := cfg.Name
		if name == "" {
			name = domain.BLEDeviceName
		}
		go func() {
			err := discovery.NewMDNSDiscoverer(log).Advertise(ctx, name, port, map[string]string{
				"version": cfg.Version,
				"path":    "/message",
			})
			if err != nil {
				log.Error("mdns advertise failed", "error", err)
			}
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Advertising %q as %s\n", name, discovery.ServiceType)
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down.")
	return nil
}

func emulatorConfig(c config.EmulatorConfig) emulator.Config {
	return emulator.Config{
		Name:           c.Name,
		Version:        c.Version,
		IPAddress:      c.IPAddress,
		ReachableSSIDs: c.ReachableSSIDs,
		PingInterval:   c.PingInterval,
	}
}

func boundPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse bound address %q: %w", addr, err)
	}
	return strconv.Atoi(p)
}
