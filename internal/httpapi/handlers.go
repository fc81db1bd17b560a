package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/hub"
	"github.com/pewpew-tabletop/range-backend/internal/persist"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
	"github.com/pewpew-tabletop/range-backend/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// CreateSession mints a session and its three join codes.
func CreateSession(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode string `json:"mode"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body) // empty body means defaults
		}
		mode := engine.ModeStandard
		if body.Mode == string(engine.ModeTraining) {
			mode = engine.ModeTraining
		}

		reply := make(chan hub.CreateReply, 1)
		h.Inbox() <- hub.CreateSession{Mode: mode, Reply: reply}
		res := <-reply
		if res.Err != nil {
			logger.Error("session create failed", zap.Error(res.Err))
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": res.SessionID,
			"mode":       mode,
			"codes":      res.Codes,
		})
	}
}

// RotateCodes replaces a session's join codes without touching its state.
func RotateCodes(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		reply := make(chan hub.RotateReply, 1)
		h.Inbox() <- hub.RotateCodes{ID: id, Reply: reply}
		res := <-reply
		if !res.OK {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"codes": res.Codes})
	}
}

// SessionStatus reports a live session's headline state.
func SessionStatus(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sessReply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{ID: id, Reply: sessReply}
		sess := <-sessReply
		if sess == nil {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}

		viewReply := make(chan session.View, 1)
		sess.Inbox() <- session.GetView{Reply: viewReply}
		view := <-viewReply

		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":  view.ID,
			"status":      view.Status,
			"turn":        view.Turn,
			"round":       view.State.Round,
			"scenario_id": view.State.ScenarioID,
			"score":       view.State.Score,
			"clients":     view.NumClients,
			"presence":    view.Presence,
			"last_seq":    view.LastSeq,
		})
	}
}

// ResolveJoinCode lets a client check a code before opening the websocket.
func ResolveJoinCode(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan hub.Resolved, 1)
		h.Inbox() <- hub.ResolveCode{Code: code, Reply: reply}
		res := <-reply
		if res.Session == nil {
			writeError(w, http.StatusNotFound, "unknown code")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": res.SessionID,
			"role":       res.Role,
		})
	}
}

// JoinQR renders a code's join link as a QR PNG for the room projector.
func JoinQR(h *hub.Hub, publicBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan hub.Resolved, 1)
		h.Inbox() <- hub.ResolveCode{Code: code, Reply: reply}
		if res := <-reply; res.Session == nil {
			writeError(w, http.StatusNotFound, "unknown code")
			return
		}

		size := 256
		if s := r.URL.Query().Get("size"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n >= 64 && n <= 1024 {
				size = n
			}
		}

		url := fmt.Sprintf("%s/join/%s", publicBaseURL, code)
		png, err := qrcode.Encode(url, qrcode.Medium, size)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render code")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// ListScenarios exposes the catalog without answer keys.
func ListScenarios(catalog *scenario.Catalog) http.HandlerFunc {
	type item struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Attacks     int    `json:"attacks"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		out := []item{}
		for _, sc := range catalog.List() {
			out = append(out, item{
				ID:          sc.ID,
				Name:        sc.Name,
				Description: sc.Description,
				Attacks:     len(sc.Attacks),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// History lists persisted session snapshots, newest first.
func History(store persist.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, _ = strconv.Atoi(s)
		}
		snaps, err := store.ListSnapshots(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		if snaps == nil {
			snaps = []persist.Snapshot{}
		}
		writeJSON(w, http.StatusOK, snaps)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
