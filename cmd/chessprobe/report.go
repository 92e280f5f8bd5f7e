package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"chessprobe/internal/domain"
	"chessprobe/internal/usecase/driver"
)

// reportWriter prints progress and the final summary to the user. Colors
// are only emitted when w is a terminal.
type reportWriter struct {
	w           io.Writer
	title       lipgloss.Style
	pass        lipgloss.Style
	fail        lipgloss.Style
	dim         lipgloss.Style
	headerStyle lipgloss.Style
	cell        lipgloss.Style
}

func newReportWriter(w io.Writer) *reportWriter {
	r := lipgloss.NewRenderer(w)
	return &reportWriter{
		w:           w,
		title:       r.NewStyle().Bold(true),
		pass:        r.NewStyle().Foreground(lipgloss.Color("10")),
		fail:        r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		dim:         r.NewStyle().Foreground(lipgloss.Color("8")),
		headerStyle: r.NewStyle().Bold(true).Padding(0, 1),
		cell:        r.NewStyle().Padding(0, 1),
	}
}

func (rw *reportWriter) header(title, target string) {
	fmt.Fprintln(rw.w, rw.title.Render(title))
	fmt.Fprintln(rw.w, strings.Repeat("=", 50))
	fmt.Fprintf(rw.w, "Testing connection to: %s\n", target)
	fmt.Fprintf(rw.w, "Test started at: %s\n", time.Now().Format(time.DateTime))
}

func (rw *reportWriter) hooks() driver.Hooks {
	return driver.Hooks{
		OnCheckStart: func(name string) {
			fmt.Fprintf(rw.w, "\n=== %s ===\n", name)
		},
		OnResult: func(r domain.CheckResult) {
			fmt.Fprintln(rw.w, rw.resultLine(r))
		},
		OnMessage: func(dir driver.Direction, env domain.Envelope) {
			fmt.Fprintln(rw.w, rw.dim.Render(fmt.Sprintf("  %s %s %s", dir, env.Type, env.ID)))
		},
	}
}

func (rw *reportWriter) resultLine(r domain.CheckResult) string {
	if r.Passed() {
		return rw.pass.Render("✓ "+r.Name) + rw.dim.Render(" ("+r.Duration.Round(time.Millisecond).String()+")")
	}
	return rw.fail.Render("✗ "+r.Name) + ": " + r.Message
}

// finish prints the summary and turns the run outcome into the command's
// result: nil when every check passed, exitCode(1) otherwise.
func (rw *reportWriter) finish(report *domain.Report, runErr error) error {
	interrupted := false
	if runErr != nil {
		switch {
		case driver.IsInterrupted(runErr):
			interrupted = true
			fmt.Fprintln(rw.w, rw.fail.Render("\nInterrupted."))
		case domain.IsFatal(runErr):
			fmt.Fprintln(rw.w, rw.fail.Render("\n✗ "+fatalHint(runErr)))
			fmt.Fprintln(rw.w, rw.dim.Render(runErr.Error()))
			return exitCode(1)
		default:
			fmt.Fprintln(rw.w, rw.fail.Render("\n✗ "+runErr.Error()))
			return exitCode(1)
		}
	}

	fmt.Fprintln(rw.w)
	fmt.Fprintln(rw.w, rw.title.Render("TEST SUMMARY"))
	fmt.Fprintln(rw.w, rw.summaryTable(report))

	passed, _ := report.Counts()
	fmt.Fprintf(rw.w, "\nResults: %d/%d tests passed\n", passed, len(report.Results))
	if interrupted {
		return exitCode(1)
	}
	if report.Passed() {
		fmt.Fprintln(rw.w, rw.pass.Render("All tests passed! Protocol is working correctly."))
		return nil
	}
	fmt.Fprintln(rw.w, rw.fail.Render("Some tests failed. Check the board logs for details."))
	return exitCode(report.ExitCode())
}

func (rw *reportWriter) summaryTable(report *domain.Report) string {
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		detail := ""
		if !r.Passed() {
			detail = string(r.Code)
		}
		rows = append(rows, []string{r.Name, string(r.Status), r.Duration.Round(time.Millisecond).String(), detail})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CHECK", "RESULT", "TIME", "CODE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return rw.headerStyle
			}
			if col == 1 && row >= 0 && row < len(report.Results) {
				if report.Results[row].Passed() {
					return rw.pass.Padding(0, 1)
				}
				return rw.fail.Padding(0, 1)
			}
			return rw.cell
		})
	return t.String()
}

func fatalHint(err error) string {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeDeviceUnreachable:
		return "Basic connectivity test failed. Check IP address and connection."
	case domain.CodeDeviceNotFound:
		return "Board not found. Is it powered on and advertising?"
	case domain.CodeCharacteristicNotFound:
		return "Board found but its protocol characteristic is missing."
	default:
		return "Run aborted."
	}
}
