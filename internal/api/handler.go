package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/render"
	"github.com/opensource-finance/fraudscan/internal/report"
)

// Provider listing bounds
const (
	defaultProviderLimit = 100
	maxProviderLimit     = 1000
)

var npiPattern = regexp.MustCompile(`^\d{10}$`)

// Handler serves one report. The report can be swapped at runtime, e.g.
// after a new scan has been written.
type Handler struct {
	mu      sync.RWMutex
	report  *domain.Report
	html    []byte
	loaded  time.Time
	version string
	clock   func() time.Time
}

// NewHandler creates a handler serving r.
func NewHandler(r *domain.Report, version string) *Handler {
	h := &Handler{version: version, clock: time.Now}
	h.SetReport(r)
	return h
}

// SetReport replaces the served report.
func (h *Handler) SetReport(r *domain.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = r
	h.html = nil
	h.loaded = h.clock()
}

func (h *Handler) current() *domain.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.report
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rep := h.current()
	resp := map[string]string{
		"status":  "healthy",
		"version": h.version,
	}
	if rep == nil {
		resp["status"] = "degraded"
	} else {
		resp["run_id"] = rep.RunID
		resp["generated_at"] = rep.GeneratedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether a report is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.current() == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no report loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetReport returns the full report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetReportHTML renders the report as a standalone HTML page. The page is
// rendered once per loaded report.
func (h *Handler) GetReportHTML(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}

	h.mu.RLock()
	page := h.html
	h.mu.RUnlock()

	if page == nil {
		var buf bytes.Buffer
		if err := render.WriteHTML(&buf, rep); err != nil {
			slog.Error("failed to render report",
				"run_id", rep.RunID,
				"error", err,
			)
			writeError(w, r, http.StatusInternalServerError, "failed to render report")
			return
		}
		page = buf.Bytes()

		h.mu.Lock()
		if h.report == rep {
			h.html = page
		}
		h.mu.Unlock()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// SummaryResponse is the response for GET /summary.
type SummaryResponse struct {
	RunID            string                       `json:"run_id"`
	GeneratedAt      string                       `json:"generated_at"`
	ExecutiveSummary domain.ExecutiveSummary      `json:"executive_summary"`
	FilterSummary    domain.FilterSummary         `json:"filter_summary"`
	SignalCounts     map[domain.SignalType]int    `json:"signal_counts"`
	DetectorErrors   map[domain.SignalType]string `json:"detector_errors,omitempty"`
}

// GetSummary returns the executive summary and stage counts.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		RunID:            rep.RunID,
		GeneratedAt:      rep.GeneratedAt,
		ExecutiveSummary: rep.ExecutiveSummary,
		FilterSummary:    rep.FilterSummary,
		SignalCounts:     rep.SignalCounts,
		DetectorErrors:   rep.DetectorErrors,
	})
}

// ProviderListResponse is the response for GET /providers.
type ProviderListResponse struct {
	Total     int                     `json:"total"`
	Count     int                     `json:"count"`
	Providers []domain.ProviderRecord `json:"providers"`
}

// ListProviders returns ranked providers, optionally filtered by tier and
// signal type. Query: tier, signal, limit, offset.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	var tier domain.RiskTier
	if v := q.Get("tier"); v != "" {
		tier = domain.RiskTier(v)
		if tier.Rank() == 0 {
			writeError(w, r, http.StatusBadRequest, "tier must be one of critical, high, medium, low")
			return
		}
	}
	signal := domain.SignalType(q.Get("signal"))

	limit, err := intParam(q.Get("limit"), defaultProviderLimit)
	if err != nil || limit < 1 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxProviderLimit {
		limit = maxProviderLimit
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	matched := make([]domain.ProviderRecord, 0, len(rep.FlaggedProviders))
	for i := range rep.FlaggedProviders {
		rec := &rep.FlaggedProviders[i]
		if tier != "" && rec.RiskScore.Tier != tier {
			continue
		}
		if signal != "" && !rec.HasSignal(signal) {
			continue
		}
		matched = append(matched, *rec)
	}

	page := []domain.ProviderRecord{}
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		page = matched[offset:end]
	}

	writeJSON(w, http.StatusOK, ProviderListResponse{
		Total:     len(matched),
		Count:     len(page),
		Providers: page,
	})
}

// GetProvider returns one flagged provider by NPI.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}

	npi := chi.URLParam(r, "npi")
	if !npiPattern.MatchString(npi) {
		writeError(w, r, http.StatusBadRequest, "npi must be 10 digits")
		return
	}

	for i := range rep.FlaggedProviders {
		if rep.FlaggedProviders[i].NPI == npi {
			writeJSON(w, http.StatusOK, rep.FlaggedProviders[i])
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "provider not flagged")
}

// GetNetworks returns the network-only view of the report.
func (h *Handler) GetNetworks(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.require(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.DeriveNetworkReport(rep, h.clock()))
}

func (h *Handler) require(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	rep := h.current()
	if rep == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no report loaded")
		return nil, false
	}
	return rep, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":    msg,
		"trace_id": GetTraceID(r.Context()),
	})
}
