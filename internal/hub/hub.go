// Package hub is the registry actor that owns every live session. It maps
// role-scoped join codes to sessions, rotates codes on demand and retires
// sessions past their TTL.
package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/session"
)

type Msg interface{ isHubMsg() }

// CreateSession spins up a session actor and mints its three join codes.
type CreateSession struct {
	Mode  engine.Mode
	Reply chan CreateReply
}

func (CreateSession) isHubMsg() {}

type CreateReply struct {
	SessionID string
	Codes     Codes
	Session   *session.Session
	Err       error
}

// Codes are the per-room join codes. The GM drives a session through its
// id from the create response; players and spectators only ever see codes.
type Codes struct {
	Red      string `json:"red"`
	Blue     string `json:"blue"`
	Audience string `json:"audience"`
}

// ResolveCode looks a join code up and returns the session plus the room
// the code admits to.
type ResolveCode struct {
	Code  string
	Reply chan Resolved
}

func (ResolveCode) isHubMsg() {}

type Resolved struct {
	SessionID string
	Role      engine.Role
	Session   *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

func (GetSession) isHubMsg() {}

// RotateCodes replaces all three codes. Clients already connected stay;
// only new joins are affected.
type RotateCodes struct {
	ID    string
	Reply chan RotateReply
}

func (RotateCodes) isHubMsg() {}

type RotateReply struct {
	Codes Codes
	OK    bool
}

type RemoveSession struct{ ID string }

func (RemoveSession) isHubMsg() {}

type ShutdownHub struct{}

func (ShutdownHub) isHubMsg() {}

type codeRef struct {
	sessionID string
	role      engine.Role
}

type entry struct {
	sess      *session.Session
	codes     Codes
	createdAt time.Time
}

// Config carries hub-wide knobs. SessionConfig is the template every new
// session starts from.
type Config struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
	SessionConfig session.Config
	Logger        *zap.Logger
}

type Hub struct {
	inbox    chan Msg
	sessions map[string]*entry
	codes    map[string]codeRef
	cfg      Config
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*entry),
		codes:    make(map[string]codeRef),
		cfg:      cfg,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			h.expire()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				h.create(msg)
			case ResolveCode:
				msg.Reply <- h.resolve(msg.Code)
			case GetSession:
				if e := h.sessions[msg.ID]; e != nil {
					msg.Reply <- e.sess
				} else {
					msg.Reply <- nil
				}
			case RotateCodes:
				h.rotate(msg)
			case RemoveSession:
				h.remove(msg.ID)
			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateSession) {
	id := uuid.NewString()

	codes, err := h.mintCodes(id)
	if err != nil {
		msg.Reply <- CreateReply{Err: err}
		return
	}

	cfg := h.cfg.SessionConfig
	cfg.Mode = msg.Mode
	sess := session.New(h.ctx, id, cfg)
	h.sessions[id] = &entry{sess: sess, codes: codes, createdAt: time.Now()}

	h.logger.Info("session created",
		zap.String("session", id),
		zap.String("mode", string(msg.Mode)))
	msg.Reply <- CreateReply{SessionID: id, Codes: codes, Session: sess}
}

func (h *Hub) mintCodes(sessionID string) (Codes, error) {
	var codes Codes
	for role, dst := range map[engine.Role]*string{
		engine.RoleRed:      &codes.Red,
		engine.RoleBlue:     &codes.Blue,
		engine.RoleAudience: &codes.Audience,
	} {
		for {
			code, err := newJoinCode(role)
			if err != nil {
				return Codes{}, err
			}
			if _, taken := h.codes[code]; taken {
				continue
			}
			h.codes[code] = codeRef{sessionID: sessionID, role: role}
			*dst = code
			break
		}
	}
	return codes, nil
}

func (h *Hub) resolve(code string) Resolved {
	ref, ok := h.codes[code]
	if !ok {
		return Resolved{}
	}
	e := h.sessions[ref.sessionID]
	if e == nil {
		return Resolved{}
	}
	return Resolved{SessionID: ref.sessionID, Role: ref.role, Session: e.sess}
}

func (h *Hub) rotate(msg RotateCodes) {
	e := h.sessions[msg.ID]
	if e == nil {
		msg.Reply <- RotateReply{}
		return
	}
	h.dropCodes(e.codes)
	codes, err := h.mintCodes(msg.ID)
	if err != nil {
		msg.Reply <- RotateReply{}
		return
	}
	e.codes = codes
	h.logger.Info("codes rotated", zap.String("session", msg.ID))
	msg.Reply <- RotateReply{Codes: codes, OK: true}
}

func (h *Hub) remove(id string) {
	e := h.sessions[id]
	if e == nil {
		return
	}
	h.dropCodes(e.codes)
	delete(h.sessions, id)
	e.sess.Inbox() <- session.Shutdown{}
	h.logger.Info("session removed", zap.String("session", id))
}

func (h *Hub) expire() {
	cutoff := time.Now().Add(-h.cfg.SessionTTL)
	for id, e := range h.sessions {
		if e.createdAt.Before(cutoff) {
			h.logger.Info("session expired", zap.String("session", id))
			h.remove(id)
		}
	}
}

func (h *Hub) dropCodes(codes Codes) {
	delete(h.codes, codes.Red)
	delete(h.codes, codes.Blue)
	delete(h.codes, codes.Audience)
}

func (h *Hub) shutdown() {
	for id, e := range h.sessions {
		e.sess.Inbox() <- session.Shutdown{}
		delete(h.sessions, id)
	}
	clear(h.codes)
	h.cancel()
}
