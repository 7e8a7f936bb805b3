package scans

import (
	"context"
	"time"
)

// Repository port (interface for persistence)
type Repository interface {
	Save(ctx context.Context, s *Scan) error
	Get(ctx context.Context, owner string, id ScanID) (*Scan, error)
	Delete(ctx context.Context, owner string, id ScanID) error

	// Status writes enforce the forward-only state machine: UpdateStatus only
	// moves pending records to processing, UpdateResult only moves processing
	// records to a terminal state and sets completedAt exactly once.
	UpdateStatus(ctx context.Context, owner string, id ScanID, status Status) error
	UpdateResult(ctx context.Context, owner string, id ScanID, status Status, score int, findings []Vulnerability, completedAt time.Time) error

	UpdateSource(ctx context.Context, owner string, id ScanID, sourceText string) error
	UpdateSnapshot(ctx context.Context, owner string, id ScanID, snap *BlockchainSnapshot) error
	UpdateReportURL(ctx context.Context, owner string, id ScanID, url string) error

	Paginate(ctx context.Context, owner string, q HistoryQuery) (PaginatedResult, error)
	ListCompleted(ctx context.Context, owner string) ([]*Scan, error)

	// MarkStaleFailed sweeps non-terminal records created before the cutoff
	// into failed and returns how many were swept.
	MarkStaleFailed(ctx context.Context, cutoff time.Time, completedAt time.Time) (int64, error)
}

// DetectedFinding is a raw finding as returned by a detector, before its
// severity label is mapped onto the internal enum.
type DetectedFinding struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Recommendation string `json:"recommendation,omitempty"`
	LineNumber     int    `json:"lineNumber,omitempty"`
	Code           string `json:"code,omitempty"`
}

// Detector port (interface for the external vulnerability detector)
type Detector interface {
	Detect(ctx context.Context, source string) ([]DetectedFinding, error)
}

// Explorer port (interface for the blockchain data collaborator)
type Explorer interface {
	Snapshot(ctx context.Context, address string, network Network) (*BlockchainSnapshot, error)
	ContractSource(ctx context.Context, address string, network Network) (string, error)
}

// ReportStore port (interface for report artifact storage)
type ReportStore interface {
	UploadReport(ctx context.Context, key string, data []byte) (string, error)
}
