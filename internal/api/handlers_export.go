package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/clindesk/ectdpack/internal/export"
	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/study"
	"github.com/go-chi/chi/v5"
)

// handleExport runs one packaging pipeline and returns its result. The
// body is an optional JSON options object; an empty body exports with
// defaults.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	var opts export.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.exporter.Export(r.Context(), studyID, opts)
	if err != nil {
		s.log.Error("export failed", "study_id", studyID, "error", err)
		writeJSON(w, statusForError(err), map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if res.Validation != nil {
		res.Validation = res.Validation.ForTransport()
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReadiness reports whether a study would pass the export gate,
// without writing anything.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	m, err := s.exporter.Manifest(r.Context(), studyID, export.Options{})
	if err != nil {
		jsonError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"studyId":     m.StudyID,
		"studyNumber": m.StudyNumber,
		"generatedAt": m.GeneratedAt,
		"readiness":   m.Readiness,
	})
}

// handleManifest returns the full package manifest a study would export
// right now.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	m, err := s.exporter.Manifest(r.Context(), studyID, export.Options{
		IncludeDrafts: r.URL.Query().Get("includeDrafts") == "true",
	})
	if err != nil {
		jsonError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// statusForError maps engine failures onto response codes: unknown
// studies are 404, state that blocks an export is 409, everything else
// is a server fault.
func statusForError(err error) int {
	var nre *export.NotReadyError
	switch {
	case errors.Is(err, study.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &nre),
		errors.Is(err, export.ErrNoDocuments),
		errors.Is(err, manifest.ErrNoActiveTemplate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
