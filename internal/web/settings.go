package web

import (
	"errors"
	"net/http"

	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/store"
)

// settingsKeys enumerates the keys exposed through the generic Settings
// key-value table, per spec.md §6.1's "Settings" surface.
var settingsKeys = []string{
	models.SettingsKeyAPIKey,
}

// handleGetSettings returns every known setting, omitting keys that have
// never been set rather than returning an empty string for them.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(settingsKeys))
	for _, key := range settingsKeys {
		value, err := s.store.GetSetting(r.Context(), key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			encodeError(w, err)
			return
		}
		out[key] = value
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpdateSettings upserts any of settingsKeys present in the request
// body, leaving keys the caller omitted untouched.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := decodeJSON(r, &body); err != nil {
		encodeError(w, err)
		return
	}
	for _, key := range settingsKeys {
		value, ok := body[key]
		if !ok {
			continue
		}
		if err := s.store.SetSetting(r.Context(), key, value); err != nil {
			encodeError(w, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}
