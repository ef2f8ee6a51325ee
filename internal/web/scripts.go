package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/slug"
	"github.com/scriptyard/scriptyard/internal/store"
)

var envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

type scriptRequest struct {
	Name               string            `json:"name"`
	FolderID           *int64            `json:"folder_id"`
	Content            string            `json:"content"`
	InterpreterVersion string            `json:"interpreter_version"`
	Requirements       string            `json:"requirements"`
	Environment        map[string]string `json:"environment"`
	EmailOnCompletion  bool              `json:"email_on_completion"`
	EmailRecipients    []string          `json:"email_recipients"`
	AutoSave           bool              `json:"auto_save"`
}

func (req scriptRequest) validate() error {
	if req.Name == "" {
		return errInvalidArgs
	}
	for k := range req.Environment {
		if !envKeyPattern.MatchString(k) {
			return errInvalidArgs
		}
	}
	return nil
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.ListScripts(r.Context(), store.ListScriptsOptions{})
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	sc := &models.Script{
		Name:               req.Name,
		FolderID:           req.FolderID,
		Content:            req.Content,
		InterpreterVersion: req.InterpreterVersion,
		Requirements:       req.Requirements,
		Environment:        req.Environment,
		EmailOnCompletion:  req.EmailOnCompletion,
		EmailRecipients:    req.EmailRecipients,
		AutoSave:           req.AutoSave,
		Enabled:            true,
	}
	if err := s.createWithUniqueSlug(r.Context(), sc); err != nil {
		encodeError(w, err)
		return
	}

	go func(scriptID int64, slug, interp, reqs string) {
		if err := s.env.Provision(context.Background(), scriptID, slug, interp, reqs); err != nil {
			s.log.Warn("environment provisioning failed", "script_id", scriptID, "error", err)
			s.bus.Publish(models.Event{Type: models.EventEnvFailed, ScriptID: scriptID, Payload: err.Error()})
			return
		}
		s.bus.Publish(models.Event{Type: models.EventEnvReady, ScriptID: scriptID})
	}(sc.ID, sc.Slug, sc.InterpreterVersion, sc.Requirements)

	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scriptFromCtx(r.Context()))
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	existing := scriptFromCtx(r.Context())
	var req scriptRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	existing.Name = req.Name
	existing.Content = req.Content
	existing.InterpreterVersion = req.InterpreterVersion
	existing.Requirements = req.Requirements
	existing.Environment = req.Environment
	existing.FolderID = req.FolderID
	existing.EmailOnCompletion = req.EmailOnCompletion
	existing.EmailRecipients = req.EmailRecipients
	existing.AutoSave = req.AutoSave
	if err := s.store.UpdateScript(r.Context(), existing); err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	sc := scriptFromCtx(r.Context())
	if err := s.store.DeleteScript(r.Context(), sc.ID); err != nil {
		encodeError(w, err)
		return
	}
	if err := s.env.Cleanup(sc.ID, sc.Slug); err != nil {
		s.log.Warn("environment cleanup failed", "script_id", sc.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAutoSave(w http.ResponseWriter, r *http.Request) {
	sc := scriptFromCtx(r.Context())
	if !sc.AutoSave {
		encodeError(w, errInvalidArgs)
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		encodeError(w, err)
		return
	}
	sc.Content = body.Content
	if err := s.store.UpdateScript(r.Context(), sc); err != nil {
		encodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	sc := scriptFromCtx(r.Context())
	s.enqueueRun(w, sc.ID, nil, models.TriggeredByManual)
}

// handleURLTrigger implements spec.md §6.1's "URL trigger": authenticated
// by an api_key query parameter checked against the Settings table, never
// by the bearer-token middleware.
func (s *Server) handleURLTrigger(w http.ResponseWriter, r *http.Request) {
	apiKey := r.URL.Query().Get("api_key")
	expected, err := s.store.GetSetting(r.Context(), models.SettingsKeyAPIKey)
	if err != nil || apiKey == "" || apiKey != expected {
		encodeError(w, auth.ErrInvalidToken)
		return
	}
	sc, err := s.store.GetScriptBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		encodeError(w, err)
		return
	}
	s.enqueueRun(w, sc.ID, nil, models.TriggeredByURL)
}

func (s *Server) enqueueRun(w http.ResponseWriter, scriptID int64, triggerID *int64, by models.TriggeredBy) {
	req := queue.RunRequest{ScriptID: scriptID, TriggerID: triggerID, TriggeredBy: by}
	if err := s.queue.Enqueue(req); err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleVenvInfo(w http.ResponseWriter, r *http.Request) {
	sc := scriptFromCtx(r.Context())
	state, err := s.env.Inspect(sc.ID, sc.Slug)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// createWithUniqueSlug derives sc.Slug from sc.Name and persists sc,
// appending "-2", "-3", ... on a slug collision with any existing script
// (slugs are unique across all folders) until the Store accepts the insert, per spec.md §4.3's Environment
// Manager collision rule.
func (s *Server) createWithUniqueSlug(ctx context.Context, sc *models.Script) error {
	base := slug.Make(sc.Name)
	sc.Slug = base
	for n := 2; ; n++ {
		err := s.store.CreateScript(ctx, sc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return err
		}
		sc.Slug = fmt.Sprintf("%s-%d", base, n)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errInvalidArgs
	}
	return id, nil
}
