package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chessprobe/internal/domain"
	"chessprobe/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a secret for use in the config file",
		Long: `Prints an "enc:" value that can replace suite.wifi_password in the
config file. The passphrase is read from CHESSPROBE_CONFIG_KEY, which must
also be set when the config is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("CHESSPROBE_CONFIG_KEY")
			if key == "" {
				return domain.NewDomainError("encrypt", domain.ErrInvalidInput, "CHESSPROBE_CONFIG_KEY is not set")
			}
			enc, err := config.EncryptValue(args[0], key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}
