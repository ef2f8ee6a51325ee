package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scriptyard/scriptyard/internal/models"
)

type folderRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

func (req folderRequest) validate() error {
	if req.Name == "" {
		return errInvalidArgs
	}
	return nil
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.store.ListFolders(r.Context())
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	f := &models.Folder{Name: req.Name, ParentID: req.ParentID}
	if err := s.store.CreateFolder(r.Context(), f); err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		encodeError(w, err)
		return
	}
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		encodeError(w, err)
		return
	}
	f := &models.Folder{ID: id, Name: req.Name, ParentID: req.ParentID}
	if err := s.store.UpdateFolder(r.Context(), f); err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		encodeError(w, err)
		return
	}
	if err := s.store.DeleteFolder(r.Context(), id); err != nil {
		encodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
