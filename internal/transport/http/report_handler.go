package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/domain"
	"spelling-assessment-service/internal/export"
)

// ReportHandler serves the aggregated reports and the flat CSV export over
// plain HTTP. The aggregators own the row structure; this layer only encodes.
type ReportHandler struct {
	service *app.AssessmentService
}

func NewReportHandler(service *app.AssessmentService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Register mounts the report routes on the mux.
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /rounds/{id}/reports", h.IndividualReports)
	mux.HandleFunc("GET /rounds/{id}/stats", h.GroupStats)
	mux.HandleFunc("GET /rounds/{id}/export.csv", h.ExportCSV)
}

// IndividualReports returns the per-student breakdowns as JSON.
func (h *ReportHandler) IndividualReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.IndividualReports(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, reports)
}

type groupStatsResponse struct {
	Rules   []domain.RuleStat    `json:"rules"`
	Words   []domain.WordStat    `json:"words"`
	Summary domain.CohortSummary `json:"summary"`
}

// GroupStats returns the cohort rule and word rankings plus the summary figures.
func (h *ReportHandler) GroupStats(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	rules, err := h.service.GroupRuleStats(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	words, err := h.service.GroupWordStats(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.service.CohortSummary(r.Context(), roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, groupStatsResponse{Rules: rules, Words: words, Summary: summary})
}

// ExportCSV streams the flat per-rule rows. An empty dataset yields 404
// rather than a headers-only file.
func (h *ReportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ExportRows(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="spelling-assessment.csv"`)
	if err := export.WriteCSV(w, rows); err != nil {
		log.Printf("csv export failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoundNotFound), errors.Is(err, domain.ErrNothingToExport):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
