package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/solsentinel/solsentinel/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	db *sql.DB
}

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository {
	return &ScanErrorRepository{db: db}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO scan_errors (owner_id, scan_id, phase, message, created_at)
VALUES ($1,$2,$3,$4,$5);
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, e.OwnerID, e.ScanID, e.Phase, e.Message, created)
	return err
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, owner string, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, owner_id, scan_id, phase, message, created_at
FROM scan_errors
WHERE owner_id=$1 AND scan_id=$2
ORDER BY created_at DESC, id DESC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, owner, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScanError
	for rows.Next() {
		var e domain.ScanError
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.ScanID, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
