package scans

// Sort orders for history listing.
const (
	SortRecency  = "recency"
	SortScore    = "score"
	SortFindings = "findings"
)

// Time ranges for history listing.
const (
	RangeDay   = "day"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeAll   = "all"
)

// HistoryQuery carries listing parameters. Search matches file name and
// contract address fields.
type HistoryQuery struct {
	Page      int
	Limit     int
	Search    string
	TimeRange string
	Sort      string
}

// Pagination summary returned with every listing page.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// PaginatedResult represents a paginated repository response.
type PaginatedResult struct {
	Data       []*Scan
	Pagination Pagination
}
