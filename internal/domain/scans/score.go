package scans

// Fixed score weights per severity level.
var severityWeights = map[Severity]int{
	SeverityCritical: 20,
	SeverityHigh:     15,
	SeverityMedium:   10,
	SeverityLow:      5,
	SeverityInfo:     2,
}

// Weight returns the score penalty for a severity level. Unrecognized
// severities are charged the medium weight.
func Weight(s Severity) int {
	if w, ok := severityWeights[s]; ok {
		return w
	}
	return severityWeights[SeverityMedium]
}

// ParseSeverity maps a detector severity label onto the internal enum.
// Unrecognized labels default to medium.
func ParseSeverity(label string) Severity {
	switch Severity(label) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(label)
	}
	return SeverityMedium
}

// Score reduces a finding list to a 0-100 security rating: start at 100,
// subtract each finding's severity weight, clamp at 0. Zero findings score
// exactly 100. The result depends only on the multiset of severities, so
// recomputation over a reordered list is stable.
func Score(findings []Vulnerability) int {
	score := 100
	for _, f := range findings {
		score -= Weight(f.Severity)
	}
	if score < 0 {
		score = 0
	}
	return score
}
