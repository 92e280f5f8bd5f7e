package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"chessprobe/internal/adapter/discovery"
)

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find boards on the local network over mDNS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setupApp(cmd, root.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			boards, err := discovery.NewMDNSDiscoverer(a.logger).Scan(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(boards) == 0 {
				fmt.Fprintf(out, "No boards found (%s, %s).\n", discovery.ServiceType, timeout)
				return exitCode(1)
			}
			fmt.Fprintln(out, boardsTable(boards, lipgloss.NewRenderer(out)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "how long to browse")
	return cmd
}

func boardsTable(boards []discovery.Board, r *lipgloss.Renderer) string {
	cell := r.NewStyle().Padding(0, 1)
	head := cell.Bold(true)

	rows := make([][]string, 0, len(boards))
	for _, b := range boards {
		rows = append(rows, []string{b.Instance, b.Host, strconv.Itoa(b.Port), formatMeta(b.Metadata)})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "HOST", "PORT", "INFO").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return head
			}
			return cell
		}).
		String()
}

func formatMeta(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}
