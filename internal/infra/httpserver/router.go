// Package httpserver wires the HTTP surface: routing, middleware, error
// mapping and request/response encoding.
package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	app "github.com/solsentinel/solsentinel/internal/application/scans"
	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
	"github.com/solsentinel/solsentinel/internal/middleware"
)

type Router struct {
	service *app.Service
	log     *zap.Logger
}

type Options struct {
	APIKeys  map[string]string
	Limiter  *middleware.Limiter
	Metrics  *middleware.Metrics
	Checkers []middleware.HealthChecker
}

// New assembles the chi router with the full middleware chain.
func New(service *app.Service, log *zap.Logger, opts Options) http.Handler {
	rt := &Router{service: service, log: log}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestLogger(log))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	// Admission control runs before auth: every request is counted against its
	// network origin and every response carries the X-RateLimit headers, even
	// ones auth goes on to reject.
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}
	r.Use(middleware.APIKeyAuth(opts.APIKeys))

	r.Get("/health", middleware.HealthHandler(opts.Checkers...))
	r.Get("/health/live", middleware.LivenessHandler())
	r.Get("/health/ready", middleware.HealthHandler(opts.Checkers...))
	if opts.Metrics != nil {
		r.Get("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/analyze", func(r chi.Router) {
			r.Post("/code", rt.wrap(rt.analyzeCode))
			r.Post("/file", rt.wrap(rt.analyzeFile))
			r.Post("/contract", rt.wrap(rt.analyzeContract))
			r.Get("/results/{scanId}", rt.wrap(rt.getResults))
			r.Get("/blockchain/{address}", rt.wrap(rt.blockchainData))
		})
		r.Route("/history", func(r chi.Router) {
			r.Get("/", rt.wrap(rt.listHistory))
			r.Get("/stats", rt.wrap(rt.getStats))
			r.Get("/{scanId}", rt.wrap(rt.getScan))
			r.Delete("/{scanId}", rt.wrap(rt.deleteScan))
			r.Get("/{scanId}/download", rt.wrap(rt.downloadReport))
		})
	})

	return r
}

// wrap converts handler errors into status codes: validation errors become
// 400, missing records 404, anything else 500.
func (rt *Router) wrap(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var ve *app.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "scan not found")
		default:
			rt.log.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

//
// ==== ANALYZE ====
//

func (rt *Router) analyzeCode(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	owner := middleware.GetOwnerFromContext(r.Context())
	id, err := rt.service.SubmitCode(r.Context(), owner, req.Code)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, acceptedResponse(id))
}

func (rt *Router) analyzeFile(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, middleware.MaxUploadBytes)
	if err := r.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		return &badRequestError{msg: "file exceeds the 5MB limit"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return &badRequestError{msg: "file field is required"}
	}
	defer file.Close()

	if err := middleware.ValidateUploadName(header.Filename); err != nil {
		return &badRequestError{msg: err.Error()}
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	owner := middleware.GetOwnerFromContext(r.Context())
	id, err := rt.service.SubmitFile(r.Context(), owner, header.Filename, string(content))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, acceptedResponse(id))
}

func (rt *Router) analyzeContract(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Address string `json:"contractAddress"`
		Network string `json:"network"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Address != "" {
		if err := middleware.ValidateAddress(req.Address); err != nil {
			return &badRequestError{msg: err.Error()}
		}
	}

	owner := middleware.GetOwnerFromContext(r.Context())
	id, err := rt.service.SubmitContract(r.Context(), owner, req.Address, req.Network)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, acceptedResponse(id))
}

func (rt *Router) getResults(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	id := domain.ScanID(chi.URLParam(r, "scanId"))

	scan, err := rt.service.Get(r.Context(), owner, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

func (rt *Router) blockchainData(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")
	network := r.URL.Query().Get("network")
	if network == "" {
		network = string(domain.NetworkEthereum)
	}

	snap, err := rt.service.BlockchainData(r.Context(), address, network)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

//
// ==== HISTORY ====
//

func (rt *Router) listHistory(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	q := domain.HistoryQuery{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    middleware.SanitizeString(r.URL.Query().Get("search")),
		TimeRange: r.URL.Query().Get("timeRange"),
		Sort:      r.URL.Query().Get("sort"),
	}

	page, err := rt.service.History(r.Context(), owner, q)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getStats(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	stats, err := rt.service.Stats(r.Context(), owner)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) getScan(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	id := domain.ScanID(chi.URLParam(r, "scanId"))

	scan, err := rt.service.Get(r.Context(), owner, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

func (rt *Router) deleteScan(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	id := domain.ScanID(chi.URLParam(r, "scanId"))

	if err := rt.service.Delete(r.Context(), owner, id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"message": "scan deleted"})
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request) error {
	owner := middleware.GetOwnerFromContext(r.Context())
	id := domain.ScanID(chi.URLParam(r, "scanId"))

	report, err := rt.service.Report(r.Context(), owner, id)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Disposition", `attachment; filename="scan-`+string(id)+`.json"`)
	return writeJSON(w, http.StatusOK, report)
}

//
// ==== ENCODING HELPERS ====
//

// badRequestError is an HTTP-layer input error, mapped to 400 like the
// service's validation errors.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func (e *badRequestError) As(target any) bool {
	if p, ok := target.(**app.ValidationError); ok {
		*p = app.NewValidationError(e.msg)
		return true
	}
	return false
}

func acceptedResponse(id domain.ScanID) map[string]string {
	return map[string]string{
		"message": "scan accepted",
		"scanId":  string(id),
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &badRequestError{msg: "invalid JSON body"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
