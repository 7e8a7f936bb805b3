package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

type stubDetector struct {
	findings []domain.DetectedFinding
	err      error
	delay    time.Duration
}

func (d *stubDetector) Detect(ctx context.Context, source string) ([]domain.DetectedFinding, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.findings, d.err
}

func TestAnalyzeMapsDetectorFindings(t *testing.T) {
	t.Parallel()

	det := &stubDetector{findings: []domain.DetectedFinding{
		{Name: "Reentrancy", Severity: "critical", Category: "Security", LineNumber: 12},
		{Name: "Style Issue", Severity: "bogus", Category: "Style"},
	}}
	iv := NewInvoker(det, time.Second, zap.NewNop())

	res, err := iv.Analyze(context.Background(), "contract C {}")
	require.NoError(t, err)

	require.Len(t, res.Findings, 2)
	assert.Equal(t, "Reentrancy", res.Findings[0].Name)
	assert.Equal(t, domain.SeverityCritical, res.Findings[0].Severity)
	assert.Equal(t, 12, res.Findings[0].LineNumber)
	// Unrecognized labels normalize to medium.
	assert.Equal(t, domain.SeverityMedium, res.Findings[1].Severity)
	assert.Equal(t, 70, res.Score)
}

func TestAnalyzeCleanContractScoresHundred(t *testing.T) {
	t.Parallel()

	iv := NewInvoker(&stubDetector{}, time.Second, zap.NewNop())
	res, err := iv.Analyze(context.Background(), "contract C {}")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Empty(t, res.Findings)
}

func TestAnalyzeFallsBackOnDetectorError(t *testing.T) {
	t.Parallel()

	iv := NewInvoker(&stubDetector{err: errors.New("connection refused")}, time.Second, zap.NewNop())
	res, err := iv.Analyze(context.Background(), "contract C {}")
	require.NoError(t, err)

	assert.Equal(t, FallbackFindings(), res.Findings)
	assert.Equal(t, 55, res.Score) // 100 - 20 - 15 - 10
}

func TestAnalyzeFallsBackOnTimeout(t *testing.T) {
	t.Parallel()

	det := &stubDetector{
		findings: []domain.DetectedFinding{{Name: "never seen", Severity: "critical"}},
		delay:    time.Second,
	}
	iv := NewInvoker(det, 10*time.Millisecond, zap.NewNop())

	res, err := iv.Analyze(context.Background(), "contract C {}")
	require.NoError(t, err)
	assert.Equal(t, FallbackFindings(), res.Findings)
}

func TestFallbackFindingsDeterministic(t *testing.T) {
	t.Parallel()

	a := FallbackFindings()
	b := FallbackFindings()
	assert.Equal(t, a, b)

	require.Len(t, a, 3)
	assert.Equal(t, "Reentrancy", a[0].Name)
	assert.Equal(t, domain.SeverityCritical, a[0].Severity)
	assert.Equal(t, "Unchecked External Call", a[1].Name)
	assert.Equal(t, domain.SeverityHigh, a[1].Severity)
	assert.Equal(t, "Integer Overflow", a[2].Name)
	assert.Equal(t, domain.SeverityMedium, a[2].Severity)
}
