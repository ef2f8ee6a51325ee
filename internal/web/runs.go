package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/store"
)

// handleListLogs implements the filtered execution-log listing of
// spec.md §6.1: script_id, status, date_from, date_to, search, limit,
// offset. search is applied in-process against stdout/stderr since the
// Store's ListExecutionRecords does not index free text.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListExecutionRecordsOptions{Limit: 50}
	if v := q.Get("script_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			encodeError(w, err)
			return
		}
		opts.ScriptID = &id
	}
	if v := q.Get("status"); v != "" {
		status := models.RunStatus(v)
		opts.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	records, err := s.store.ListExecutionRecords(r.Context(), opts)
	if err != nil {
		encodeError(w, err)
		return
	}

	records = filterByDateRange(records, q.Get("date_from"), q.Get("date_to"))
	if search := q.Get("search"); search != "" {
		records = filterBySearch(records, search)
	}
	writeJSON(w, http.StatusOK, records)
}

func filterByDateRange(records []*models.ExecutionRecord, fromStr, toStr string) []*models.ExecutionRecord {
	if fromStr == "" && toStr == "" {
		return records
	}
	from, hasFrom := parseRFC3339(fromStr)
	to, hasTo := parseRFC3339(toStr)
	out := records[:0]
	for _, rec := range records {
		if hasFrom && rec.StartedAt.Before(from) {
			continue
		}
		if hasTo && rec.StartedAt.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func parseRFC3339(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func filterBySearch(records []*models.ExecutionRecord, needle string) []*models.ExecutionRecord {
	needle = strings.ToLower(needle)
	out := records[:0]
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Stdout), needle) || strings.Contains(strings.ToLower(rec.Stderr), needle) {
			out = append(out, rec)
		}
	}
	return out
}

// logsSummary is the aggregate statistics view over execution logs.
type logsSummary struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Timeout    int `json:"timeout"`
	Running    int `json:"running"`
}

func (s *Server) handleLogsSummary(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListExecutionRecords(r.Context(), store.ListExecutionRecordsOptions{})
	if err != nil {
		encodeError(w, err)
		return
	}
	var summary logsSummary
	for _, rec := range records {
		summary.Total++
		switch rec.Status {
		case models.RunSuccess:
			summary.Success++
		case models.RunFailed:
			summary.Failed++
		case models.RunTimeout:
			summary.Timeout++
		case models.RunRunning:
			summary.Running++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		encodeError(w, err)
		return
	}
	rec, err := s.store.GetExecutionRecord(r.Context(), id)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		encodeError(w, err)
		return
	}
	if err := s.store.DeleteExecutionRecord(r.Context(), id); err != nil {
		encodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCleanupLogs applies the retention_keep_newest policy per script on
// demand, in addition to any periodic retention sweep.
func (s *Server) handleCleanupLogs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScriptID   int64 `json:"script_id"`
		KeepNewest int   `json:"keep_newest"`
	}
	if err := decodeJSON(r, &body); err != nil {
		encodeError(w, err)
		return
	}
	if body.KeepNewest <= 0 {
		body.KeepNewest = s.cfg.RetentionKeepNewest
	}
	n, err := s.store.DeleteExecutionRecordsOlderThan(r.Context(), body.ScriptID, body.KeepNewest)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
