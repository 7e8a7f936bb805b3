package memory

import (
	"context"
	"sync"

	domain "github.com/solsentinel/solsentinel/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	errs   []*domain.ScanError
}

func NewScanErrorRepository() *ScanErrorRepository {
	return &ScanErrorRepository{nextID: 1}
}

func (r *ScanErrorRepository) Save(_ context.Context, e *domain.ScanError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = r.nextID
	r.nextID++
	r.errs = append(r.errs, &cp)
	return nil
}

func (r *ScanErrorRepository) ListByScan(_ context.Context, owner string, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.ScanError
	// newest first
	for i := len(r.errs) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.errs[i]
		if e.OwnerID == owner && e.ScanID == scanID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
