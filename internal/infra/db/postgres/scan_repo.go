package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

const scanColumns = `
id, owner_id, source_type, source_text, file_name, contract_address, network,
status, security_score, findings, snapshot, report_url, created_at, completed_at`

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans
(id, owner_id, source_type, source_text, file_name, contract_address, network,
 status, security_score, findings, snapshot, report_url, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);
`
	findings, err := json.Marshal(s.Findings)
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}
	snapshot, err := marshalSnapshot(s.Snapshot)
	if err != nil {
		return err
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.OwnerID, s.SourceKind, s.SourceText, s.FileName, s.ContractAddress, s.Network,
		s.Status, s.SecurityScore, findings, snapshot, s.ReportURL, created, nullableTime(s.CompletedAt),
	)
	return err
}

func (r *ScanRepository) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE owner_id=$1 AND id=$2 LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, owner, id)

	s, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *ScanRepository) Delete(ctx context.Context, owner string, id domain.ScanID) error {
	const q = `DELETE FROM scans WHERE owner_id=$1 AND id=$2;`
	res, err := r.db.ExecContext(ctx, q, owner, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScanRepository) UpdateStatus(ctx context.Context, owner string, id domain.ScanID, status domain.Status) error {
	if status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	const q = `
UPDATE scans SET status=$1
WHERE owner_id=$2 AND id=$3 AND status='pending';`
	return r.guardedExec(ctx, q, status, owner, id)
}

func (r *ScanRepository) UpdateResult(ctx context.Context, owner string, id domain.ScanID, status domain.Status, score int, findings []domain.Vulnerability, completedAt time.Time) error {
	if !status.Terminal() {
		return domain.ErrInvalidTransition
	}
	if findings == nil {
		findings = []domain.Vulnerability{}
	}
	encoded, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}

	const q = `
UPDATE scans
SET status=$1, security_score=$2, findings=$3, completed_at=$4
WHERE owner_id=$5 AND id=$6 AND status='processing';`
	return r.guardedExec(ctx, q, status, score, encoded, completedAt, owner, id)
}

func (r *ScanRepository) UpdateSource(ctx context.Context, owner string, id domain.ScanID, sourceText string) error {
	const q = `UPDATE scans SET source_text=$1 WHERE owner_id=$2 AND id=$3;`
	return r.guardedExec(ctx, q, sourceText, owner, id)
}

func (r *ScanRepository) UpdateSnapshot(ctx context.Context, owner string, id domain.ScanID, snap *domain.BlockchainSnapshot) error {
	encoded, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	const q = `UPDATE scans SET snapshot=$1 WHERE owner_id=$2 AND id=$3;`
	return r.guardedExec(ctx, q, encoded, owner, id)
}

func (r *ScanRepository) UpdateReportURL(ctx context.Context, owner string, id domain.ScanID, url string) error {
	const q = `UPDATE scans SET report_url=$1 WHERE owner_id=$2 AND id=$3;`
	return r.guardedExec(ctx, q, url, owner, id)
}

func (r *ScanRepository) Paginate(ctx context.Context, owner string, pq domain.HistoryQuery) (domain.PaginatedResult, error) {
	where := ` WHERE owner_id=$1`
	args := []any{owner}

	if pq.Search != "" {
		pattern := "%" + escapeLikePattern(pq.Search) + "%"
		where += fmt.Sprintf(` AND (file_name ILIKE $%d OR contract_address ILIKE $%d)`, len(args)+1, len(args)+2)
		args = append(args, pattern, pattern)
	}
	if cutoff, ok := rangeCutoff(pq.TimeRange); ok {
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args)+1)
		args = append(args, cutoff)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`+where, args...).Scan(&count); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting scans: %w", err)
	}

	order := ` ORDER BY created_at DESC`
	switch pq.Sort {
	case domain.SortScore:
		order = ` ORDER BY security_score DESC, created_at DESC`
	case domain.SortFindings:
		order = ` ORDER BY jsonb_array_length(findings) DESC, created_at DESC`
	}

	q := `SELECT ` + scanColumns + ` FROM scans` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d;`, len(args)+1, len(args)+2)
	args = append(args, pq.Limit, (pq.Page-1)*pq.Limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	scans, err := collectRows(rows)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	return domain.PaginatedResult{
		Data: scans,
		Pagination: domain.Pagination{
			Total: count,
			Page:  pq.Page,
			Limit: pq.Limit,
			Pages: int(math.Ceil(float64(count) / float64(pq.Limit))),
		},
	}, nil
}

func (r *ScanRepository) ListCompleted(ctx context.Context, owner string) ([]*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans
WHERE owner_id=$1 AND status='completed'
ORDER BY created_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (r *ScanRepository) MarkStaleFailed(ctx context.Context, cutoff time.Time, completedAt time.Time) (int64, error) {
	const q = `
UPDATE scans
SET status='failed', completed_at=$1
WHERE status IN ('pending','processing') AND created_at < $2;`
	res, err := r.db.ExecContext(ctx, q, completedAt, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ScanRepository) guardedExec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*domain.Scan, error) {
	var (
		s           domain.Scan
		sourceText  sql.NullString
		fileName    sql.NullString
		address     sql.NullString
		network     sql.NullString
		findings    []byte
		snapshot    []byte
		reportURL   sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.OwnerID, &s.SourceKind, &sourceText, &fileName, &address, &network,
		&s.Status, &s.SecurityScore, &findings, &snapshot, &reportURL, &s.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	s.SourceText = sourceText.String
	s.FileName = fileName.String
	s.ContractAddress = address.String
	s.Network = domain.Network(network.String)
	s.ReportURL = reportURL.String
	if completedAt.Valid {
		at := completedAt.Time
		s.CompletedAt = &at
	}
	s.Findings = []domain.Vulnerability{}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &s.Findings); err != nil {
			return nil, fmt.Errorf("decoding findings: %w", err)
		}
	}
	if len(snapshot) > 0 {
		var snap domain.BlockchainSnapshot
		if err := json.Unmarshal(snapshot, &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		s.Snapshot = &snap
	}
	return &s, nil
}

func collectRows(rows *sql.Rows) ([]*domain.Scan, error) {
	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func marshalSnapshot(snap *domain.BlockchainSnapshot) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return b, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func rangeCutoff(timeRange string) (time.Time, bool) {
	now := time.Now()
	switch timeRange {
	case domain.RangeDay:
		return now.AddDate(0, 0, -1), true
	case domain.RangeWeek:
		return now.AddDate(0, 0, -7), true
	case domain.RangeMonth:
		return now.AddDate(0, 0, -30), true
	}
	return time.Time{}, false
}

func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
