package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scriptyard/scriptyard/internal/models"
)

type ctxKeyScript struct{}

// scriptContext resolves the {slug} path parameter to a models.Script and
// stores it on the request context, mirroring the teacher's dagContext
// (internal/admin/handlers/routes.go) generalized from a bare name string
// to the resolved entity, since every script handler needs the full row.
func (s *Server) scriptContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			encodeError(w, errInvalidArgs)
			return
		}
		sc, err := s.store.GetScriptBySlug(r.Context(), slug)
		if err != nil {
			encodeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyScript{}, sc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func scriptFromCtx(ctx context.Context) *models.Script {
	sc, _ := ctx.Value(ctxKeyScript{}).(*models.Script)
	return sc
}

type ctxKeyTrigger struct{}

// triggerContext resolves the {id} path parameter to a models.Trigger.
func (s *Server) triggerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			encodeError(w, errInvalidArgs)
			return
		}
		t, err := s.store.GetTrigger(r.Context(), id)
		if err != nil {
			encodeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyTrigger{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func triggerFromCtx(ctx context.Context) *models.Trigger {
	t, _ := ctx.Value(ctxKeyTrigger{}).(*models.Trigger)
	return t
}
