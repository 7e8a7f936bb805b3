// Package memory provides in-process repositories used by the "memory"
// database driver and by tests. State is lost on restart.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

type ScanRepository struct {
	mu    sync.RWMutex
	scans map[domain.ScanID]*domain.Scan
}

func NewScanRepository() *ScanRepository {
	return &ScanRepository{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (r *ScanRepository) Save(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneScan(s)
	r.scans[s.ID] = cp
	return nil
}

func (r *ScanRepository) Get(_ context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return nil, nil
	}
	return cloneScan(s), nil
}

func (r *ScanRepository) Delete(_ context.Context, owner string, id domain.ScanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	delete(r.scans, id)
	return nil
}

func (r *ScanRepository) UpdateStatus(_ context.Context, owner string, id domain.ScanID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	if status != domain.StatusProcessing || s.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	s.Status = status
	return nil
}

func (r *ScanRepository) UpdateResult(_ context.Context, owner string, id domain.ScanID, status domain.Status, score int, findings []domain.Vulnerability, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	if !status.Terminal() || s.Status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	s.Status = status
	s.SecurityScore = score
	s.Findings = append([]domain.Vulnerability(nil), findings...)
	if s.Findings == nil {
		s.Findings = []domain.Vulnerability{}
	}
	at := completedAt
	s.CompletedAt = &at
	return nil
}

func (r *ScanRepository) UpdateSource(_ context.Context, owner string, id domain.ScanID, sourceText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	s.SourceText = sourceText
	return nil
}

func (r *ScanRepository) UpdateSnapshot(_ context.Context, owner string, id domain.ScanID, snap *domain.BlockchainSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	s.Snapshot = cloneSnapshot(snap)
	return nil
}

func (r *ScanRepository) UpdateReportURL(_ context.Context, owner string, id domain.ScanID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.OwnerID != owner {
		return domain.ErrNotFound
	}
	s.ReportURL = url
	return nil
}

func (r *ScanRepository) Paginate(_ context.Context, owner string, q domain.HistoryQuery) (domain.PaginatedResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cutoff time.Time
	switch q.TimeRange {
	case domain.RangeDay:
		cutoff = time.Now().AddDate(0, 0, -1)
	case domain.RangeWeek:
		cutoff = time.Now().AddDate(0, 0, -7)
	case domain.RangeMonth:
		cutoff = time.Now().AddDate(0, 0, -30)
	}
	search := strings.ToLower(q.Search)

	var matched []*domain.Scan
	for _, s := range r.scans {
		if s.OwnerID != owner {
			continue
		}
		if !cutoff.IsZero() && s.CreatedAt.Before(cutoff) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(s.FileName), search) &&
			!strings.Contains(strings.ToLower(s.ContractAddress), search) {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch q.Sort {
		case domain.SortScore:
			if a.SecurityScore != b.SecurityScore {
				return a.SecurityScore > b.SecurityScore
			}
		case domain.SortFindings:
			if len(a.Findings) != len(b.Findings) {
				return len(a.Findings) > len(b.Findings)
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := int64(len(matched))
	pages := int(math.Ceil(float64(total) / float64(q.Limit)))
	start := (q.Page - 1) * q.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*domain.Scan, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, cloneScan(s))
	}
	return domain.PaginatedResult{
		Data: out,
		Pagination: domain.Pagination{
			Total: total,
			Page:  q.Page,
			Limit: q.Limit,
			Pages: pages,
		},
	}, nil
}

func (r *ScanRepository) ListCompleted(_ context.Context, owner string) ([]*domain.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Scan
	for _, s := range r.scans {
		if s.OwnerID == owner && s.Status == domain.StatusCompleted {
			out = append(out, cloneScan(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ScanRepository) MarkStaleFailed(_ context.Context, cutoff time.Time, completedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.scans {
		if s.Status.Terminal() || !s.CreatedAt.Before(cutoff) {
			continue
		}
		s.Status = domain.StatusFailed
		at := completedAt
		s.CompletedAt = &at
		n++
	}
	return n, nil
}

func cloneScan(s *domain.Scan) *domain.Scan {
	cp := *s
	cp.Findings = append([]domain.Vulnerability(nil), s.Findings...)
	if cp.Findings == nil {
		cp.Findings = []domain.Vulnerability{}
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		cp.CompletedAt = &at
	}
	cp.Snapshot = cloneSnapshot(s.Snapshot)
	return &cp
}

func cloneSnapshot(snap *domain.BlockchainSnapshot) *domain.BlockchainSnapshot {
	if snap == nil {
		return nil
	}
	cp := *snap
	cp.Transactions = append([]domain.Transaction(nil), snap.Transactions...)
	if snap.LastActivity != nil {
		at := *snap.LastActivity
		cp.LastActivity = &at
	}
	return &cp
}
