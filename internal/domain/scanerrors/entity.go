package scanerrors

import "time"

// Phases a background failure can be recorded under.
const (
	PhaseAnalysis   = "analysis"
	PhaseEnrichment = "enrichment"
	PhaseReport     = "report"
	PhaseReconcile  = "reconcile"
)

// ScanError is a persisted audit entry for a background-task failure.
// Background errors are never surfaced to an HTTP response; this trail is how
// an operator finds them later.
type ScanError struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"ownerId"`
	ScanID    string    `json:"scanId"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
