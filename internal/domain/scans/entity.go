package scans

import (
	"time"
)

// ID type for Scan
type ScanID string

// SourceKind enum
type SourceKind string

const (
	SourceCode     SourceKind = "code"
	SourceFile     SourceKind = "file"
	SourceContract SourceKind = "contract_address"
)

// Status enum. Transitions only move forward:
// pending -> processing -> completed | failed
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Network enum
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkBinance  Network = "binance"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
)

// ValidNetwork reports whether s names a supported network.
func ValidNetwork(s string) bool {
	switch Network(s) {
	case NetworkEthereum, NetworkBinance, NetworkPolygon, NetworkArbitrum, NetworkOptimism:
		return true
	}
	return false
}

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Vulnerability is one finding attached to a Scan. Immutable once attached.
type Vulnerability struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	LineNumber     int      `json:"lineNumber,omitempty"`
	Code           string   `json:"code,omitempty"`
	Category       string   `json:"category"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Transaction is one entry in a blockchain snapshot.
type Transaction struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"`
}

// BlockchainSnapshot is the optional on-chain enrichment. Absent means
// "not yet enriched or enrichment failed silently".
type BlockchainSnapshot struct {
	Balance      string        `json:"balance"`
	Transactions []Transaction `json:"transactions"`
	LastActivity *time.Time    `json:"lastActivity,omitempty"`
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Tally counts findings per severity level.
func Tally(findings []Vulnerability) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		case SeverityInfo:
			c.Info++
		}
		c.Total++
	}
	return c
}

// Aggregate Root: Scan
type Scan struct {
	ID              ScanID              `json:"id"`
	OwnerID         string              `json:"ownerId"`
	SourceKind      SourceKind          `json:"sourceType"`
	SourceText      string              `json:"sourceContent,omitempty"`
	FileName        string              `json:"fileName,omitempty"`
	ContractAddress string              `json:"contractAddress,omitempty"`
	Network         Network             `json:"network,omitempty"`
	Status          Status              `json:"status"`
	SecurityScore   int                 `json:"securityScore,omitempty"`
	Findings        []Vulnerability     `json:"vulnerabilities"`
	Snapshot        *BlockchainSnapshot `json:"blockchainAnalytics,omitempty"`
	ReportURL       string              `json:"reportUrl,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
}

// HistoryEntry is the listing projection of a Scan: findings are summarized
// as a severity tally, computed on read and never stored.
type HistoryEntry struct {
	ID              ScanID         `json:"id"`
	SourceKind      SourceKind     `json:"sourceType"`
	FileName        string         `json:"fileName,omitempty"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	Network         Network        `json:"network,omitempty"`
	Status          Status         `json:"status"`
	SecurityScore   int            `json:"securityScore,omitempty"`
	Vulnerabilities SeverityCounts `json:"vulnerabilities"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// NewHistoryEntry projects a Scan into its listing form.
func NewHistoryEntry(s *Scan) HistoryEntry {
	return HistoryEntry{
		ID:              s.ID,
		SourceKind:      s.SourceKind,
		FileName:        s.FileName,
		ContractAddress: s.ContractAddress,
		Network:         s.Network,
		Status:          s.Status,
		SecurityScore:   s.SecurityScore,
		Vulnerabilities: Tally(s.Findings),
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
	}
}
