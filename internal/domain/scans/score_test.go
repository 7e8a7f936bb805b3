package scans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		severities []Severity
		want       int
	}{
		{"no findings", nil, 100},
		{"single critical", []Severity{SeverityCritical}, 80},
		{"one of each", []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}, 48},
		{"clamped at zero", []Severity{
			SeverityCritical, SeverityCritical, SeverityCritical,
			SeverityCritical, SeverityCritical, SeverityCritical,
		}, 0},
		{"info only", []Severity{SeverityInfo, SeverityInfo}, 96},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			findings := make([]Vulnerability, 0, len(tt.severities))
			for _, sev := range tt.severities {
				findings = append(findings, Vulnerability{Name: "x", Severity: sev})
			}
			assert.Equal(t, tt.want, Score(findings))
		})
	}
}

func TestScoreOrderIndependent(t *testing.T) {
	t.Parallel()

	a := []Vulnerability{
		{Severity: SeverityCritical},
		{Severity: SeverityLow},
		{Severity: SeverityHigh},
	}
	b := []Vulnerability{
		{Severity: SeverityHigh},
		{Severity: SeverityCritical},
		{Severity: SeverityLow},
	}
	assert.Equal(t, Score(a), Score(b))
}

func TestScoreUnknownSeverityChargedAsMedium(t *testing.T) {
	t.Parallel()

	unknown := []Vulnerability{{Severity: Severity("weird")}}
	medium := []Vulnerability{{Severity: SeverityMedium}}
	assert.Equal(t, Score(medium), Score(unknown))
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
	assert.Equal(t, SeverityInfo, ParseSeverity("info"))
	assert.Equal(t, SeverityMedium, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityMedium, ParseSeverity(""))
	assert.Equal(t, SeverityMedium, ParseSeverity("blocker"))
}

func TestTally(t *testing.T) {
	t.Parallel()

	counts := Tally([]Vulnerability{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
		{Severity: SeverityInfo},
	})
	assert.Equal(t, SeverityCounts{Critical: 2, High: 1, Info: 1, Total: 4}, counts)

	assert.Equal(t, SeverityCounts{}, Tally(nil))
}
