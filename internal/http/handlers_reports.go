package http

import (
	"net/http"

	"vansales/internal/report"
)

const maxReportDays = 366

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.Ready(); err != nil {
		writeProblem(w, r, err)
		return
	}
	day, err := dateParam(r, s.portal.Today())
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.portal.Dashboard(r.Context(), day))
}

// handleDailyReports lists archived nightly summaries, newest first. Without
// ?limit= the archive's default applies.
func (s *Server) handleDailyReports(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	summaries, err := s.archive.List(r.Context(), min(limit, maxReportDays))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []report.DailySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

// handlePurchaseDrift lists customers whose running purchase total no longer
// matches their sales history.
func (s *Server) handlePurchaseDrift(w http.ResponseWriter, r *http.Request) {
	drift := s.portal.PurchaseDrift()
	if drift == nil {
		drift = []report.PurchaseDrift{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": drift})
}
