package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solsentinel/solsentinel/internal/application/analysis"
	"github.com/solsentinel/solsentinel/internal/application/tasks"
	"github.com/solsentinel/solsentinel/internal/domain/scanerrors"
	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

const (
	defaultLimit    = 10
	maxLimit        = 100
	maxSourceBytes  = 5 << 20
	recentIncidents = 5
)

// Analyzer port: the analysis step as seen by the lifecycle manager. An error
// here is the only thing that drives a processing record to failed.
type Analyzer interface {
	Analyze(ctx context.Context, source string) (analysis.Result, error)
}

// Metrics hooks for lifecycle counters. All methods must be cheap.
type Metrics interface {
	ScanSubmitted()
	ScanCompleted()
	ScanFailed()
}

// Service implements the scan lifecycle use-cases.
// Safe for concurrent use; each scan is an independent unit of work.
type Service struct {
	Repo     domain.Repository
	Errors   scanerrors.Repository // optional
	Analyzer Analyzer
	Explorer domain.Explorer
	Reports  domain.ReportStore // optional
	Tasks    *tasks.Runner
	Clock    Clock
	Metrics  Metrics // optional
	Log      *zap.Logger
}

//
// ==== SUBMISSION USE CASES ====
//

// SubmitCode accepts pasted source, creates a pending record and schedules
// analysis. Returns the scan id immediately; callers poll for the outcome.
func (s *Service) SubmitCode(ctx context.Context, owner, code string) (domain.ScanID, error) {
	if strings.TrimSpace(code) == "" {
		return "", invalidf("code is required")
	}
	if len(code) > maxSourceBytes {
		return "", invalidf("code exceeds %d bytes", maxSourceBytes)
	}

	scan := s.newScan(owner, domain.SourceCode)
	scan.SourceText = code
	return s.accept(ctx, scan)
}

// SubmitFile accepts an uploaded contract file. Content validation (size,
// extension) happens at the HTTP layer; here the file is just another source.
func (s *Service) SubmitFile(ctx context.Context, owner, fileName, content string) (domain.ScanID, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", invalidf("file name is required")
	}
	if strings.TrimSpace(content) == "" {
		return "", invalidf("file is empty")
	}

	scan := s.newScan(owner, domain.SourceFile)
	scan.FileName = fileName
	scan.SourceText = content
	return s.accept(ctx, scan)
}

// SubmitContract accepts an on-chain address. The contract source is fetched
// in the background step; a second independent task enriches the record with
// blockchain data and never affects status.
func (s *Service) SubmitContract(ctx context.Context, owner, address, network string) (domain.ScanID, error) {
	if strings.TrimSpace(address) == "" {
		return "", invalidf("contract address is required")
	}
	if !domain.ValidNetwork(network) {
		return "", invalidf("invalid network: %s", network)
	}

	scan := s.newScan(owner, domain.SourceContract)
	scan.ContractAddress = address
	scan.Network = domain.Network(network)

	id, err := s.accept(ctx, scan)
	if err != nil {
		return "", err
	}

	s.Tasks.Go(fmt.Sprintf("enrichment/%s", id), func() {
		s.enrichScan(owner, id, address, domain.Network(network))
	})
	return id, nil
}

func (s *Service) newScan(owner string, kind domain.SourceKind) *domain.Scan {
	return &domain.Scan{
		ID:         domain.ScanID(uuid.New().String()),
		OwnerID:    owner,
		SourceKind: kind,
		Status:     domain.StatusPending,
		Findings:   []domain.Vulnerability{},
		CreatedAt:  s.Clock.Now(),
	}
}

// accept persists the pending record and schedules processing without
// blocking the caller.
func (s *Service) accept(ctx context.Context, scan *domain.Scan) (domain.ScanID, error) {
	if err := s.Repo.Save(ctx, scan); err != nil {
		return "", fmt.Errorf("saving scan: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.ScanSubmitted()
	}

	owner, id, source := scan.OwnerID, scan.ID, scan.SourceText
	address, network := scan.ContractAddress, scan.Network
	s.Tasks.Go(fmt.Sprintf("analysis/%s", id), func() {
		s.processScan(owner, id, source, address, network)
	})
	return scan.ID, nil
}

//
// ==== BACKGROUND STEPS ====
//

// processScan advances one record through its lifecycle: processing, then the
// analysis result. Runs detached from the request context so it survives the
// response cycle (callers already got their 202).
func (s *Service) processScan(owner string, id domain.ScanID, source string, address string, network domain.Network) {
	ctx := context.Background()

	if err := s.Repo.UpdateStatus(ctx, owner, id, domain.StatusProcessing); err != nil {
		// Leave the record in its last durably-written state.
		s.Log.Error("marking scan processing", zap.String("scan_id", string(id)), zap.Error(err))
		s.recordError(ctx, owner, id, scanerrors.PhaseAnalysis, err)
		return
	}

	// Contract submissions carry no source yet; fetch it from the explorer
	// and retain it for audit.
	if source == "" && address != "" {
		fetched, err := s.Explorer.ContractSource(ctx, address, network)
		if err != nil {
			s.Log.Error("fetching contract source", zap.String("scan_id", string(id)), zap.Error(err))
			s.recordError(ctx, owner, id, scanerrors.PhaseAnalysis, err)
			s.markFailed(ctx, owner, id)
			return
		}
		source = fetched
		if err := s.Repo.UpdateSource(ctx, owner, id, source); err != nil {
			s.Log.Warn("persisting fetched source", zap.String("scan_id", string(id)), zap.Error(err))
		}
	}

	res, err := s.Analyzer.Analyze(ctx, source)
	if err != nil {
		s.Log.Error("analysis failed past fallback", zap.String("scan_id", string(id)), zap.Error(err))
		s.recordError(ctx, owner, id, scanerrors.PhaseAnalysis, err)
		s.markFailed(ctx, owner, id)
		return
	}

	if err := s.Repo.UpdateResult(ctx, owner, id, domain.StatusCompleted, res.Score, res.Findings, s.Clock.Now()); err != nil {
		s.Log.Error("writing scan result", zap.String("scan_id", string(id)), zap.Error(err))
		s.recordError(ctx, owner, id, scanerrors.PhaseAnalysis, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.ScanCompleted()
	}
	s.Log.Info("scan completed",
		zap.String("scan_id", string(id)),
		zap.Int("score", res.Score),
		zap.Int("findings", len(res.Findings)),
	)

	s.uploadReport(ctx, owner, id)
}

func (s *Service) markFailed(ctx context.Context, owner string, id domain.ScanID) {
	if err := s.Repo.UpdateResult(ctx, owner, id, domain.StatusFailed, 0, nil, s.Clock.Now()); err != nil {
		s.Log.Error("marking scan failed", zap.String("scan_id", string(id)), zap.Error(err))
	}
	if s.Metrics != nil {
		s.Metrics.ScanFailed()
	}
}

// enrichScan attaches on-chain data to a record. Best effort: failure is
// logged and audited, never reflected in scan status.
func (s *Service) enrichScan(owner string, id domain.ScanID, address string, network domain.Network) {
	ctx := context.Background()

	snap, err := s.Explorer.Snapshot(ctx, address, network)
	if err != nil {
		s.Log.Warn("blockchain enrichment failed",
			zap.String("scan_id", string(id)),
			zap.String("address", address),
			zap.Error(err),
		)
		s.recordError(ctx, owner, id, scanerrors.PhaseEnrichment, err)
		return
	}
	if err := s.Repo.UpdateSnapshot(ctx, owner, id, snap); err != nil {
		s.Log.Warn("writing blockchain snapshot", zap.String("scan_id", string(id)), zap.Error(err))
		s.recordError(ctx, owner, id, scanerrors.PhaseEnrichment, err)
	}
}

// uploadReport stores the completed scan's JSON report as an artifact and
// links it on the record. Best effort.
func (s *Service) uploadReport(ctx context.Context, owner string, id domain.ScanID) {
	if s.Reports == nil {
		return
	}

	report, err := s.Report(ctx, owner, id)
	if err != nil {
		s.Log.Warn("building report artifact", zap.String("scan_id", string(id)), zap.Error(err))
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		s.Log.Warn("encoding report artifact", zap.String("scan_id", string(id)), zap.Error(err))
		return
	}

	key := fmt.Sprintf("%s/%s.json", owner, id)
	url, err := s.Reports.UploadReport(ctx, key, data)
	if err != nil {
		s.Log.Warn("uploading report artifact", zap.String("scan_id", string(id)), zap.Error(err))
		s.recordError(ctx, owner, id, scanerrors.PhaseReport, err)
		return
	}
	if err := s.Repo.UpdateReportURL(ctx, owner, id, url); err != nil {
		s.Log.Warn("linking report artifact", zap.String("scan_id", string(id)), zap.Error(err))
	}
}

func (s *Service) recordError(ctx context.Context, owner string, id domain.ScanID, phase string, cause error) {
	if s.Errors == nil {
		return
	}
	e := &scanerrors.ScanError{
		OwnerID:   owner,
		ScanID:    string(id),
		Phase:     phase,
		Message:   cause.Error(),
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		s.Log.Warn("persisting scan error", zap.String("scan_id", string(id)), zap.Error(err))
	}
}

//
// ==== READ USE CASES ====
//

// Get returns one scan scoped to its owner.
func (s *Service) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	scan, err := s.Repo.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, domain.ErrNotFound
	}
	return scan, nil
}

// Delete removes a scan unconditionally. No soft delete, no cascade.
func (s *Service) Delete(ctx context.Context, owner string, id domain.ScanID) error {
	return s.Repo.Delete(ctx, owner, id)
}

// HistoryPage is the listing response envelope.
type HistoryPage struct {
	Scans      []domain.HistoryEntry `json:"scans"`
	Pagination domain.Pagination     `json:"pagination"`
}

// History lists a caller's scans with pagination, free-text search, time
// range filtering and sorting. A page beyond the end yields an empty list.
func (s *Service) History(ctx context.Context, owner string, q domain.HistoryQuery) (HistoryPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	switch q.TimeRange {
	case domain.RangeDay, domain.RangeWeek, domain.RangeMonth:
	default:
		q.TimeRange = domain.RangeAll
	}
	switch q.Sort {
	case domain.SortScore, domain.SortFindings:
	default:
		q.Sort = domain.SortRecency
	}

	res, err := s.Repo.Paginate(ctx, owner, q)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("listing scans: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(res.Data))
	for _, scan := range res.Data {
		entries = append(entries, domain.NewHistoryEntry(scan))
	}
	return HistoryPage{Scans: entries, Pagination: res.Pagination}, nil
}

// Stats computes the aggregate series over the caller's completed scans.
// Zero completed scans yields empty series, never an error.
func (s *Service) Stats(ctx context.Context, owner string) (domain.HistoryStats, error) {
	completed, err := s.Repo.ListCompleted(ctx, owner)
	if err != nil {
		return domain.HistoryStats{}, fmt.Errorf("loading completed scans: %w", err)
	}
	return domain.ComputeStats(completed, recentIncidents), nil
}

// ScanReport is the downloadable raw report for one scan.
type ScanReport struct {
	ScanID          domain.ScanID              `json:"scanId"`
	CreatedAt       time.Time                  `json:"createdAt"`
	CompletedAt     *time.Time                 `json:"completedAt,omitempty"`
	SourceKind      domain.SourceKind          `json:"sourceType"`
	FileName        string                     `json:"fileName,omitempty"`
	ContractAddress string                     `json:"contractAddress,omitempty"`
	Network         domain.Network             `json:"network,omitempty"`
	Status          domain.Status              `json:"status"`
	SecurityScore   int                        `json:"securityScore,omitempty"`
	Vulnerabilities []domain.Vulnerability     `json:"vulnerabilities"`
	Blockchain      *domain.BlockchainSnapshot `json:"blockchainAnalytics,omitempty"`
}

// Report assembles the raw JSON report for a scan.
func (s *Service) Report(ctx context.Context, owner string, id domain.ScanID) (ScanReport, error) {
	scan, err := s.Get(ctx, owner, id)
	if err != nil {
		return ScanReport{}, err
	}
	return ScanReport{
		ScanID:          scan.ID,
		CreatedAt:       scan.CreatedAt,
		CompletedAt:     scan.CompletedAt,
		SourceKind:      scan.SourceKind,
		FileName:        scan.FileName,
		ContractAddress: scan.ContractAddress,
		Network:         scan.Network,
		Status:          scan.Status,
		SecurityScore:   scan.SecurityScore,
		Vulnerabilities: scan.Findings,
		Blockchain:      scan.Snapshot,
	}, nil
}

// BlockchainData serves the on-demand explorer lookup, independent of any
// scan record.
func (s *Service) BlockchainData(ctx context.Context, address, network string) (*domain.BlockchainSnapshot, error) {
	if strings.TrimSpace(address) == "" {
		return nil, invalidf("contract address is required")
	}
	if !domain.ValidNetwork(network) {
		return nil, invalidf("invalid network: %s", network)
	}
	return s.Explorer.Snapshot(ctx, address, domain.Network(network))
}

//
// ==== RECONCILIATION ====
//

// RunReconciler periodically sweeps records stuck in pending/processing past
// staleAfter into failed. Blocks until ctx is cancelled; run it on its own
// goroutine from main.
func (s *Service) RunReconciler(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.Clock.Now()
			n, err := s.Repo.MarkStaleFailed(ctx, now.Add(-staleAfter), now)
			if err != nil {
				s.Log.Error("reconciling stale scans", zap.Error(err))
				continue
			}
			if n > 0 {
				s.Log.Warn("swept stale scans to failed", zap.Int64("count", n))
			}
		}
	}
}
