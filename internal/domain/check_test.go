package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		passed   bool
		exitCode int
	}{
		{"empty", nil, false, 1},
		{"all pass", []CheckResult{{Name: "a", Status: StatusPass}, {Name: "b", Status: StatusPass}}, true, 0},
		{"one fail", []CheckResult{{Name: "a", Status: StatusPass}, {Name: "b", Status: StatusFail}}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Results: tt.results}
			assert.Equal(t, tt.passed, r.Passed())
			assert.Equal(t, tt.exitCode, r.ExitCode())
		})
	}
}

func TestReportCounts(t *testing.T) {
	r := &Report{Results: []CheckResult{
		{Name: "a", Status: StatusPass},
		{Name: "b", Status: StatusFail},
		{Name: "c", Status: StatusFail},
	}}
	passed, failed := r.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 2, failed)
}
