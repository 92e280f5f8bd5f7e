package domain

import "time"

// CheckStatus represents the outcome of a single check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single named check.
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Message  string    // optional diagnostic
	Code     ErrorCode // set when Status is FAIL because of an error
	Duration time.Duration
}

// Passed reports whether the check passed.
func (r CheckResult) Passed() bool { return r.Status == StatusPass }

// Report is the ordered list of results for one run.
type Report struct {
	Target    string
	StartedAt time.Time
	Results   []CheckResult
}

// Passed reports whether every check passed. A report with no results
// (for example after a fatal discovery error) has not passed.
func (r *Report) Passed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Counts returns the number of passed and failed checks.
func (r *Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// ExitCode maps the report to a process exit status: 0 when every check
// passed, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}
