package main

import (
	"time"

	"github.com/spf13/cobra"

	"chessprobe/internal/adapter/codec"
	"chessprobe/internal/adapter/emulator"
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/usecase/driver"
)

type bleOptions struct {
	name        string
	scanTimeout time.Duration
	emulated    bool
}

func newBLECmd(root *rootOptions) *cobra.Command {
	opts := &bleOptions{}
	cmd := &cobra.Command{
		Use:   "ble",
		Short: "Run the Bluetooth LE suite against a nearby board",
		Long: `Scans for the board by advertised name, connects, resolves the protocol
characteristic and runs the BLE checks. A check passes when its write
succeeds and the board sends no ERROR within the listen window.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBLESuite(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "advertised device name to look for")
	cmd.Flags().DurationVar(&opts.scanTimeout, "scan-timeout", 0, "how long to scan for the board")
	cmd.Flags().BoolVar(&opts.emulated, "emulated", false, "run against an in-process emulated board")
	return cmd
}

func runBLESuite(cmd *cobra.Command, root *rootOptions, opts *bleOptions) error {
	a, err := setupApp(cmd, root.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if opts.name != "" {
		cfg.BLE.DeviceName = opts.name
	}
	if opts.scanTimeout > 0 {
		cfg.BLE.ScanTimeout = opts.scanTimeout
	}

	var backend transport.BLEBackend
	if opts.emulated {
		board := emulator.NewBoard(emulatorConfig(cfg.Emulator), a.logger.With("component", "emulator"))
		backend = emulator.NewBLELink(board, "")
	} else {
		backend = transport.NewTinyGoBackend()
	}

	bleT := transport.NewBLE(transport.BLEConfig{
		DeviceName:         cfg.BLE.DeviceName,
		ServiceUUID:        cfg.BLE.ServiceUUID,
		CharacteristicUUID: cfg.BLE.CharacteristicUUID,
		ScanTimeout:        cfg.BLE.ScanTimeout,
	}, backend, a.logger)

	out := newReportWriter(cmd.OutOrStdout())
	out.header("NAOchess Board BLE Protocol Test", cfg.BLE.DeviceName)

	checks := driver.BLESuite(driver.BLESuiteOptions{
		WiFi:           wifiPayload(cfg.Suite),
		GreetingWindow: cfg.BLE.GreetingWindow,
		ReplyWindow:    cfg.BLE.ReplyWindow,
		WiFiWindow:     cfg.BLE.WiFiWindow,
	})
	d := driver.New(a.decorate(bleT), codec.New(), driver.Config{
		CheckDelay: cfg.Board.CheckDelay,
	}, out.hooks(), a.logger)

	report, err := d.Run(cmd.Context(), checks)
	return out.finish(report, err)
}
