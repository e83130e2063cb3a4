package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"logbook/internal/reports"
	"logbook/pkg/types"
)

// handleGetReport answers /api/reports?from=YYYY-MM-DD&to=YYYY-MM-DD with
// JSON, or with a PDF download when format=pdf.
func (s *Service) handleGetReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	errs := types.NewValidationError()

	from, err := reports.ParseDate(query.Get("from"), time.Local)
	if err != nil {
		errs.Add("from", "Start date must look like 2006-01-02.")
	}
	to, err := reports.ParseDate(query.Get("to"), time.Local)
	if err != nil {
		errs.Add("to", "End date must look like 2006-01-02.")
	}
	if err := errs.OrNil(); err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.reports.Generate(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if query.Get("format") != "pdf" {
		s.writeJSON(w, http.StatusOK, report)
		return
	}

	var buf bytes.Buffer
	if err := reports.WritePDF(&buf, report); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reports.FileName(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
