// Package ws bridges websocket connections onto session actors: one reader
// loop per connection feeding the inbox, one writer goroutine draining the
// client's outbox.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/hub"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
	"github.com/pewpew-tabletop/range-backend/internal/session"
	"github.com/pewpew-tabletop/range-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	// outboxSize must absorb a full launch burst (alerts + score + turn
	// events) without tripping the slow-client drop.
	outboxSize = 64
)

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, role, ok := admit(h, r)
		if !ok {
			http.Error(w, "unknown code or session", http.StatusNotFound)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anonymous"
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan engine.Event, outboxSize)
		welcomeCh := make(chan session.Welcome, 1)

		sess.Inbox() <- session.Join{
			ClientID: clientID,
			Name:     name,
			Role:     role,
			Outbox:   out,
			Reply:    welcomeCh,
		}
		defer func() { sess.Inbox() <- session.Leave{ClientID: clientID} }()

		welcome := <-welcomeCh
		if err := write(r.Context(), conn, welcomeMessage(welcome)); err != nil {
			return
		}

		// Writer: the outbox closes when the session drops or shuts us down.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			for e := range out {
				msg := types.ServerMessage{Type: types.MsgEvent, Event: &e, LastSeq: e.Seq}
				if err := write(writeCtx, conn, msg); err != nil {
					return
				}
			}
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		reader(writeCtx, conn, sess, clientID, name, role, logger)
	}
}

// admit resolves either a player join code or a GM session id.
func admit(h *hub.Hub, r *http.Request) (*session.Session, engine.Role, bool) {
	if code := r.URL.Query().Get("code"); code != "" {
		reply := make(chan hub.Resolved, 1)
		h.Inbox() <- hub.ResolveCode{Code: code, Reply: reply}
		res := <-reply
		if res.Session == nil {
			return nil, "", false
		}
		return res.Session, res.Role, true
	}
	if id := r.URL.Query().Get("session"); id != "" {
		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{ID: id, Reply: reply}
		sess := <-reply
		if sess == nil {
			return nil, "", false
		}
		return sess, engine.RoleGM, true
	}
	return nil, "", false
}

func reader(ctx context.Context, conn *websocket.Conn, sess *session.Session, clientID, name string, role engine.Role, logger *zap.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				logger.Debug("read failed", zap.String("client", clientID), zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "bad json", ErrorKind: "bad_request"})
			continue
		}

		switch cm.Type {
		case types.MsgHeartbeat:
			sess.Inbox() <- session.Heartbeat{ClientID: clientID}

		case types.MsgChat:
			sess.Inbox() <- session.Chat{ClientID: clientID, Name: name, Role: role, Text: cm.Text}

		case types.MsgResync:
			reply := make(chan session.ResyncReply, 1)
			sess.Inbox() <- session.Resync{Role: role, LastSeq: cm.LastSeq, Reply: reply}
			r := <-reply
			msg := types.ServerMessage{
				Type:    types.MsgSync,
				Full:    r.Full,
				Events:  r.Events,
				LastSeq: r.LastSeq,
			}
			if r.Full {
				msg.State = types.NewStateView(r.State, role)
			}
			_ = write(ctx, conn, msg)

		case types.MsgCommand:
			cmd, ok := toCommand(cm, clientID, role)
			if !ok {
				_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "unknown command", ErrorKind: "bad_request"})
				continue
			}
			reply := make(chan error, 1)
			sess.Inbox() <- session.FromClient{ClientID: clientID, Cmd: cmd, Reply: reply}
			if err := <-reply; err != nil {
				_ = write(ctx, conn, types.ServerMessage{
					Type:      types.MsgError,
					Error:     err.Error(),
					ErrorKind: types.ErrorKindOf(err),
				})
			}

		default:
			_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "unknown type", ErrorKind: "bad_request"})
		}
	}
}

// clientCommands is the set of command types a connection may issue. Ticks
// and timeouts only ever originate inside the session.
var clientCommands = map[engine.CommandType]bool{
	engine.CmdStart:           true,
	engine.CmdDismissBriefing: true,
	engine.CmdPause:           true,
	engine.CmdResume:          true,
	engine.CmdReset:           true,
	engine.CmdStop:            true,
	engine.CmdLaunchAttack:    true,
	engine.CmdRunScan:         true,
	engine.CmdSubmitAction:    true,
	engine.CmdSubmitVote:      true,
	engine.CmdGMInject:        true,
}

func toCommand(m types.ClientMessage, clientID string, role engine.Role) (engine.Command, bool) {
	ct := engine.CommandType(m.Cmd)
	if !clientCommands[ct] {
		return engine.Command{}, false
	}
	return engine.Command{
		Type:       ct,
		Actor:      clientID,
		Role:       role,
		ScenarioID: m.ScenarioID,
		Mode:       engine.Mode(m.Mode),
		AttackID:   m.AttackID,
		From:       m.From,
		To:         m.To,
		SourceIP:   m.SourceIP,
		Tool:       scenario.ScanTool(m.Tool),
		Target:     m.Target,
		ActionType: engine.ActionType(m.Action),
		Note:       m.Note,
		Topic:      engine.VoteTopic(m.Topic),
		Choice:     m.Choice,
		InjectKind: m.InjectKind,
	}, true
}

func welcomeMessage(w session.Welcome) types.ServerMessage {
	return types.ServerMessage{
		Type:      types.MsgWelcome,
		SessionID: w.SessionID,
		Role:      string(w.Role),
		State:     types.NewStateView(w.State, w.Role),
		Scenario:  types.NewScenarioView(w.Scenario, w.Role),
		Events:    w.Events,
		LastSeq:   w.LastSeq,
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
