package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
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

// Save inserts the initial scan row. Later lifecycle writes go through the
// targeted Update* methods, never a whole-row upsert.
func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans
(id, owner_id, source_type, source_text, file_name, contract_address, network,
 status, security_score, findings, snapshot, report_url, created_at, completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);
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

// Get by ID + owner
func (r *ScanRepository) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE owner_id=? AND id=? LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, owner, id)

	s, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *ScanRepository) Delete(ctx context.Context, owner string, id domain.ScanID) error {
	const q = `DELETE FROM scans WHERE owner_id=? AND id=?;`
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

// UpdateStatus moves a pending record to processing. The WHERE guard keeps
// the state machine forward-only even under concurrent writers.
func (r *ScanRepository) UpdateStatus(ctx context.Context, owner string, id domain.ScanID, status domain.Status) error {
	if status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	const q = `
UPDATE scans SET status=?
WHERE owner_id=? AND id=? AND status='pending';`
	return r.guardedExec(ctx, q, status, owner, id)
}

// UpdateResult writes the terminal state with score, findings and the single
// completed_at timestamp, atomically with the transition.
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
SET status=?, security_score=?, findings=?, completed_at=?
WHERE owner_id=? AND id=? AND status='processing';`
	return r.guardedExec(ctx, q, status, score, encoded, completedAt, owner, id)
}

func (r *ScanRepository) UpdateSource(ctx context.Context, owner string, id domain.ScanID, sourceText string) error {
	const q = `UPDATE scans SET source_text=? WHERE owner_id=? AND id=?;`
	return r.guardedExec(ctx, q, sourceText, owner, id)
}

func (r *ScanRepository) UpdateSnapshot(ctx context.Context, owner string, id domain.ScanID, snap *domain.BlockchainSnapshot) error {
	encoded, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	const q = `UPDATE scans SET snapshot=? WHERE owner_id=? AND id=?;`
	return r.guardedExec(ctx, q, encoded, owner, id)
}

func (r *ScanRepository) UpdateReportURL(ctx context.Context, owner string, id domain.ScanID, url string) error {
	const q = `UPDATE scans SET report_url=? WHERE owner_id=? AND id=?;`
	return r.guardedExec(ctx, q, url, owner, id)
}

// Paginate with offset + limit, search, time range and sort order.
func (r *ScanRepository) Paginate(ctx context.Context, owner string, pq domain.HistoryQuery) (domain.PaginatedResult, error) {
	where := ` WHERE owner_id=?`
	args := []any{owner}

	if pq.Search != "" {
		where += ` AND (file_name LIKE ? OR contract_address LIKE ?)`
		pattern := "%" + escapeLikePattern(pq.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if cutoff, ok := rangeCutoff(pq.TimeRange); ok {
		where += ` AND created_at >= ?`
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
		order = ` ORDER BY JSON_LENGTH(findings) DESC, created_at DESC`
	}

	q := `SELECT ` + scanColumns + ` FROM scans` + where + order + ` LIMIT ? OFFSET ?;`
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
WHERE owner_id=? AND status='completed'
ORDER BY created_at ASC;`
	rows, err := r.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// MarkStaleFailed sweeps non-terminal records created before the cutoff.
func (r *ScanRepository) MarkStaleFailed(ctx context.Context, cutoff time.Time, completedAt time.Time) (int64, error) {
	const q = `
UPDATE scans
SET status='failed', completed_at=?
WHERE status IN ('pending','processing') AND created_at < ?;`
	res, err := r.db.ExecContext(ctx, q, completedAt, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// guardedExec maps "no row touched" to an error so lifecycle writes against
// missing records or wrong states never pass silently.
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
