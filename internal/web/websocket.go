package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/scriptyard/scriptyard/internal/fanout"
	"github.com/scriptyard/scriptyard/internal/models"
)

// handleWebsocket implements the Live-Event Fan-out's client-facing
// transport (spec.md §4.6): each connection gets its own fanout.Subscription
// filtered by the optional script_id and event_type query parameters,
// grounded on the teacher's coder/websocket dependency.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	filter := parseEventFilter(r)
	sub := s.bus.Subscribe(filter)
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

func parseEventFilter(r *http.Request) fanout.Filter {
	q := r.URL.Query()
	var filter fanout.Filter
	if v := q.Get("script_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ScriptID = &id
		}
	}
	if v := q.Get("event_type"); v != "" {
		filter.Types = make(map[models.EventType]bool)
		for _, t := range strings.Split(v, ",") {
			filter.Types[models.EventType(t)] = true
		}
	}
	return filter
}
