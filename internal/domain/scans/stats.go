package scans

import (
	"math"
	"sort"
	"time"
)

// TrendPoint is one day of the security trend series, rated on a 0-10 scale.
type TrendPoint struct {
	Day    string  `json:"day"`
	Rating float64 `json:"rating"`
}

// DistributionEntry is one finding name's share of all findings.
type DistributionEntry struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// NetworkShare is one network's share of completed on-chain scans.
type NetworkShare struct {
	Network    Network `json:"network"`
	Percentage float64 `json:"percentage"`
}

// Incident is a recent critical or high finding surfaced on the dashboard.
type Incident struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Link        string    `json:"link,omitempty"`
}

// HistoryStats aggregates a caller's completed scans.
type HistoryStats struct {
	SecurityTrends            []TrendPoint        `json:"securityTrends"`
	VulnerabilityDistribution []DistributionEntry `json:"vulnerabilityDistribution"`
	NetworkActivity           []NetworkShare      `json:"networkActivity"`
	RecentIncidents           []Incident          `json:"recentIncidents"`
}

// ComputeStats derives all aggregate series from a caller's completed scans.
// Callers with no completed scans get empty series, never nil slices.
func ComputeStats(completed []*Scan, maxIncidents int) HistoryStats {
	return HistoryStats{
		SecurityTrends:            securityTrends(completed),
		VulnerabilityDistribution: vulnerabilityDistribution(completed),
		NetworkActivity:           networkActivity(completed),
		RecentIncidents:           recentIncidents(completed, maxIncidents),
	}
}

// securityTrends groups completed scans by calendar day of creation and
// rates each day as average(score)/10, one decimal, ordered by day ascending.
func securityTrends(completed []*Scan) []TrendPoint {
	type bucket struct {
		sum   int
		count int
	}
	byDay := make(map[string]*bucket)
	for _, s := range completed {
		day := s.CreatedAt.UTC().Format("2006-01-02")
		b, ok := byDay[day]
		if !ok {
			b = &bucket{}
			byDay[day] = b
		}
		b.sum += s.SecurityScore
		b.count++
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]TrendPoint, 0, len(days))
	for _, day := range days {
		b := byDay[day]
		avg := float64(b.sum) / float64(b.count)
		out = append(out, TrendPoint{Day: day, Rating: round1(avg / 10)})
	}
	return out
}

// vulnerabilityDistribution flattens findings across completed scans and
// reports each finding name's percentage of the total, ordered by share
// descending then name ascending.
func vulnerabilityDistribution(completed []*Scan) []DistributionEntry {
	counts := make(map[string]int)
	total := 0
	for _, s := range completed {
		for _, f := range s.Findings {
			counts[f.Name]++
			total++
		}
	}

	out := make([]DistributionEntry, 0, len(counts))
	if total == 0 {
		return out
	}
	for name, n := range counts {
		out = append(out, DistributionEntry{
			Name:       name,
			Percentage: round1(float64(n) / float64(total) * 100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// networkActivity groups completed scans by network; records without a
// network are excluded from both numerator and denominator.
func networkActivity(completed []*Scan) []NetworkShare {
	counts := make(map[Network]int)
	total := 0
	for _, s := range completed {
		if s.Network == "" {
			continue
		}
		counts[s.Network]++
		total++
	}

	out := make([]NetworkShare, 0, len(counts))
	if total == 0 {
		return out
	}
	for network, n := range counts {
		out = append(out, NetworkShare{
			Network:    network,
			Percentage: round1(float64(n) / float64(total) * 100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		return out[i].Network < out[j].Network
	})
	return out
}

// recentIncidents surfaces the newest critical/high findings across completed
// scans, newest scan first, capped at max.
func recentIncidents(completed []*Scan, max int) []Incident {
	if max <= 0 {
		max = 5
	}

	ordered := make([]*Scan, len(completed))
	copy(ordered, completed)
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := ordered[i].CreatedAt, ordered[j].CreatedAt
		if ordered[i].CompletedAt != nil {
			ti = *ordered[i].CompletedAt
		}
		if ordered[j].CompletedAt != nil {
			tj = *ordered[j].CompletedAt
		}
		return ti.After(tj)
	})

	out := make([]Incident, 0, max)
	for _, s := range ordered {
		date := s.CreatedAt
		if s.CompletedAt != nil {
			date = *s.CompletedAt
		}
		for _, f := range s.Findings {
			if f.Severity != SeverityCritical && f.Severity != SeverityHigh {
				continue
			}
			out = append(out, Incident{
				Title:       f.Name,
				Date:        date,
				Description: f.Description,
				Severity:    f.Severity,
			})
			if len(out) == max {
				return out
			}
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
