package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vansales/internal/services"
	"vansales/internal/spreadsheet"
)

// multipart overhead allowed on top of the workbook itself
const uploadSlack = 1 << 20

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := s.portal.Ready(); err != nil {
		writeProblem(w, r, err)
		return
	}
	data, filename, err := s.portal.Export(kind)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleStageImport accepts a multipart upload in the "file" field and
// returns a preview. Nothing is stored until the import is committed.
func (s *Server) handleStageImport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImportBytes+uploadSlack)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, services.ErrImportTooLarge)
			return
		}
		writeProblem(w, r, fmt.Errorf("%w: missing file field: %v", errBadRequest, err))
		return
	}
	defer file.Close()

	preview, err := s.portal.StageImport(r.Context(), kind, file)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.CommitImport(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.CancelImport(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
