package web

import (
	"net/http"

	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/scheduler"
)

type triggerRequest struct {
	ScriptID     int64              `json:"script_id"`
	Kind         models.TriggerKind `json:"kind"`
	CronExpr     string             `json:"cron_expr"`
	CronTimezone string             `json:"cron_timezone"`
	IntervalSecs int                `json:"interval_seconds"`
	Enabled      bool               `json:"enabled"`
}

func (req triggerRequest) validate() error {
	if !req.Kind.Valid() || req.ScriptID == 0 {
		return errInvalidArgs
	}
	if req.Kind == models.TriggerCron {
		if p := scheduler.ValidateAndPreview(req.CronExpr, req.CronTimezone); !p.Valid {
			return errInvalidArgs
		}
	}
	if req.Kind == models.TriggerInterval && req.IntervalSecs <= 0 {
		return errInvalidArgs
	}
	return nil
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	scriptIDStr := r.URL.Query().Get("script_id")
	if scriptIDStr == "" {
		encodeError(w, errInvalidArgs)
		return
	}
	scriptID, err := parseID(scriptIDStr)
	if err != nil {
		encodeError(w, err)
		return
	}
	triggers, err := s.store.ListTriggersByScript(r.Context(), scriptID)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	t := &models.Trigger{
		ScriptID:     req.ScriptID,
		Kind:         req.Kind,
		CronExpr:     req.CronExpr,
		CronTimezone: req.CronTimezone,
		IntervalSecs: req.IntervalSecs,
		Enabled:      req.Enabled,
	}
	if err := s.store.CreateTrigger(r.Context(), t); err != nil {
		encodeError(w, err)
		return
	}
	if t.Enabled {
		s.scheduler.OnTriggerChanged(t)
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, triggerFromCtx(r.Context()))
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	existing := triggerFromCtx(r.Context())
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	existing.Kind = req.Kind
	existing.CronExpr = req.CronExpr
	existing.CronTimezone = req.CronTimezone
	existing.IntervalSecs = req.IntervalSecs
	existing.Enabled = req.Enabled
	existing.NextFireAt = nil
	if err := s.store.UpdateTrigger(r.Context(), existing); err != nil {
		encodeError(w, err)
		return
	}
	if existing.Enabled {
		s.scheduler.OnTriggerChanged(existing)
	} else {
		s.scheduler.OnTriggerDeleted(existing.ID)
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	t := triggerFromCtx(r.Context())
	if err := s.store.DeleteTrigger(r.Context(), t.ID); err != nil {
		encodeError(w, err)
		return
	}
	s.scheduler.OnTriggerDeleted(t.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CronExpr     string `json:"cron_expr"`
		CronTimezone string `json:"cron_timezone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		encodeError(w, err)
		return
	}
	preview := scheduler.ValidateAndPreview(body.CronExpr, body.CronTimezone)
	writeJSON(w, http.StatusOK, preview)
}
