// Package session runs one exercise session as an actor: a single goroutine
// owns the engine state, the event log and the connected clients, and
// everything else talks to it through the inbox. Commands are applied in
// arrival order, so the engine never needs locks.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/eventlog"
	"github.com/pewpew-tabletop/range-backend/internal/persist"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

type Msg interface{ isSessionMsg() }

// FromClient carries a game command. Reply, when non-nil, receives the
// apply error (nil on success) so the originating client alone sees
// rejections; accepted commands reach everyone through the broadcast.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
	Reply    chan error
}

func (FromClient) isSessionMsg() {}

type Join struct {
	ClientID string
	Name     string
	Role     engine.Role
	Outbox   chan engine.Event
	Reply    chan Welcome
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

// Chat is room-scoped messaging. It never touches game state.
type Chat struct {
	ClientID string
	Name     string
	Role     engine.Role
	Text     string
}

func (Chat) isSessionMsg() {}

type Heartbeat struct{ ClientID string }

func (Heartbeat) isSessionMsg() {}

// Resync asks for everything after LastSeq. When the log has evicted that
// far back the reply falls back to a full snapshot.
type Resync struct {
	Role    engine.Role
	LastSeq int64
	Reply   chan ResyncReply
}

func (Resync) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Welcome is the join-time snapshot: current state plus the retained event
// suffix the new client's room is allowed to see.
type Welcome struct {
	SessionID string
	Role      engine.Role
	State     engine.State
	Scenario  *scenario.Scenario
	Events    []engine.Event
	LastSeq   int64
}

type ResyncReply struct {
	// Full means the gap could not be replayed; State carries the snapshot
	// and Events the retained suffix.
	Full    bool
	State   engine.State
	Events  []engine.Event
	LastSeq int64
}

type Presence struct {
	ClientID string      `json:"client_id"`
	Name     string      `json:"name"`
	Role     engine.Role `json:"role"`
	Online   bool        `json:"online"`
}

type View struct {
	ID         string
	Status     engine.Status
	Turn       engine.Side
	NumClients int
	State      engine.State
	LastSeq    int64
	Presence   []Presence
}

// Config carries session knobs; zero values get sane defaults.
type Config struct {
	Rules        engine.Rules
	Mode         engine.Mode
	LogCap       int
	TimeDilation float64
	TickInterval time.Duration
	// DisableResync forces every resync to a full snapshot instead of an
	// incremental replay.
	DisableResync bool
	Catalog       *scenario.Catalog
	Store         persist.Store
	Logger        *zap.Logger
}

type client struct {
	name     string
	role     engine.Role
	outbox   chan engine.Event
	lastSeen time.Time
	stale    bool
}

type Session struct {
	ID string

	inbox   chan Msg
	state   engine.State
	sc      *scenario.Scenario
	catalog *scenario.Catalog
	log     *eventlog.Log
	clients map[string]*client
	store   persist.Store
	logger  *zap.Logger
	clock   clock
	tick    time.Duration
	noSince bool

	ctx    context.Context
	cancel context.CancelFunc
}

// staleAfter is how long a client may go without a heartbeat before its
// presence flips offline. The connection itself is left alone; transport
// liveness belongs to the websocket layer.
const staleAfter = 90 * time.Second

func New(parent context.Context, id string, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = scenario.Default()
	}
	if cfg.Store == nil {
		cfg.Store = persist.NopStore{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	st := engine.NewState(id, cfg.Rules)
	if cfg.Mode != "" {
		st.Mode = cfg.Mode
	}

	s := &Session{
		ID:      id,
		inbox:   make(chan Msg, 64),
		state:   st,
		catalog: cfg.Catalog,
		log:     eventlog.New(cfg.LogCap),
		clients: make(map[string]*client),
		store:   cfg.Store,
		logger:  cfg.Logger.With(zap.String("session", id)),
		clock:   newClock(cfg.TimeDilation),
		tick:    scaledInterval(cfg.TickInterval, cfg.TimeDilation),
		noSince: cfg.DisableResync,
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.loop()
	return s
}

// Inbox is how the websocket layer and the hub talk to this session.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-ticker.C:
			s.handleTick()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Leave:
				s.handleLeave(msg.ClientID, "left")
			case FromClient:
				s.handleCommand(msg)
			case Chat:
				s.handleChat(msg)
			case Heartbeat:
				s.handleHeartbeat(msg.ClientID)
			case Resync:
				s.handleResync(msg)
			case GetView:
				msg.Reply <- s.view()
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	s.clients[msg.ClientID] = &client{
		name:     msg.Name,
		role:     msg.Role,
		outbox:   msg.Outbox,
		lastSeen: time.Now(),
	}
	s.logger.Info("client joined",
		zap.String("client", msg.ClientID),
		zap.String("role", string(msg.Role)))

	if msg.Reply != nil {
		recent := filterForRole(s.log.Recent(s.logCapHint()), msg.Role)
		msg.Reply <- Welcome{
			SessionID: s.ID,
			Role:      msg.Role,
			State:     s.state,
			Scenario:  s.sc,
			Events:    recent,
			LastSeq:   s.log.LastSeq(),
		}
	}

	s.publish(s.presenceEvent(msg.ClientID, true))
}

func (s *Session) handleLeave(clientID, reason string) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	delete(s.clients, clientID)
	close(c.outbox)
	s.logger.Info("client removed",
		zap.String("client", clientID),
		zap.String("reason", reason))

	s.publish(engine.Event{
		Kind: engine.EvtPresenceUpdate,
		At:   s.clock.Now(),
		Payload: map[string]any{
			"client_id": clientID,
			"name":      c.name,
			"role":      c.role,
			"online":    false,
		},
	})
}

func (s *Session) handleCommand(msg FromClient) {
	sc := s.sc
	if msg.Cmd.Type == engine.CmdStart {
		sc, _ = s.catalog.Get(msg.Cmd.ScenarioID)
	}

	events, next, err := engine.Apply(s.state, msg.Cmd, sc, s.clock.Now())
	if err != nil {
		s.logger.Debug("command rejected",
			zap.String("client", msg.ClientID),
			zap.String("cmd", string(msg.Cmd.Type)),
			zap.Error(err))
		if msg.Reply != nil {
			msg.Reply <- err
		}
		return
	}

	if msg.Cmd.Type == engine.CmdStart {
		s.sc = sc
	}
	s.state = next
	s.publish(events...)
	s.persistAsync()
	if msg.Reply != nil {
		msg.Reply <- nil
	}
}

func (s *Session) handleChat(msg Chat) {
	c, ok := s.clients[msg.ClientID]
	if !ok {
		return
	}
	c.lastSeen = time.Now()

	// GM chat reaches every room; everyone else talks inside their own
	// room, with the GM always listening in.
	var rooms []engine.Role
	if msg.Role != engine.RoleGM {
		rooms = []engine.Role{msg.Role, engine.RoleGM}
	}
	s.publish(engine.Event{
		Kind:  engine.EvtChatMessage,
		At:    s.clock.Now(),
		Rooms: rooms,
		Payload: map[string]any{
			"client_id": msg.ClientID,
			"from":      msg.Name,
			"role":      msg.Role,
			"text":      msg.Text,
		},
	})
}

func (s *Session) handleHeartbeat(clientID string) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	c.lastSeen = time.Now()
	if c.stale {
		c.stale = false
		s.publish(s.presenceEvent(clientID, true))
	}
}

func (s *Session) handleTick() {
	events, next, err := engine.Apply(s.state, engine.Command{Type: engine.CmdTick}, s.sc, s.clock.Now())
	if err == nil {
		s.state = next
		if len(events) > 0 {
			s.publish(events...)
			s.persistAsync()
		}
	}

	now := time.Now()
	for id, c := range s.clients {
		if !c.stale && now.Sub(c.lastSeen) > staleAfter {
			c.stale = true
			s.publish(s.presenceEvent(id, false))
		}
	}
}

func (s *Session) handleResync(msg Resync) {
	events, ok := s.log.Since(msg.LastSeq)
	if ok && !s.noSince {
		msg.Reply <- ResyncReply{
			Events:  filterForRole(events, msg.Role),
			LastSeq: s.log.LastSeq(),
		}
		return
	}
	// Gap: the client missed evicted events, hand it the full picture.
	msg.Reply <- ResyncReply{
		Full:    true,
		State:   s.state,
		Events:  filterForRole(s.log.Recent(s.logCapHint()), msg.Role),
		LastSeq: s.log.LastSeq(),
	}
}

// publish appends events to the log and fans them out to every client whose
// room may see them. A client with a full outbox is dropped rather than
// allowed to stall the actor.
func (s *Session) publish(events ...engine.Event) {
	if len(events) == 0 {
		return
	}
	stored := s.log.AppendAll(events)

	var dropped []string
deliver:
	for id, c := range s.clients {
		for _, e := range stored {
			if !engine.VisibleTo(e, c.role) {
				continue
			}
			select {
			case c.outbox <- e:
			default:
				close(c.outbox)
				delete(s.clients, id)
				dropped = append(dropped, id)
				continue deliver
			}
		}
	}

	for _, id := range dropped {
		s.logger.Warn("dropped slow client", zap.String("client", id))
		s.publish(engine.Event{
			Kind: engine.EvtPresenceUpdate,
			At:   s.clock.Now(),
			Payload: map[string]any{
				"client_id": id,
				"online":    false,
				"reason":    "slow_consumer",
			},
		})
	}
}

func (s *Session) presenceEvent(clientID string, online bool) engine.Event {
	c := s.clients[clientID]
	return engine.Event{
		Kind: engine.EvtPresenceUpdate,
		At:   s.clock.Now(),
		Payload: map[string]any{
			"client_id": clientID,
			"name":      c.name,
			"role":      c.role,
			"online":    online,
		},
	}
}

func (s *Session) view() View {
	presence := make([]Presence, 0, len(s.clients))
	for id, c := range s.clients {
		presence = append(presence, Presence{
			ClientID: id,
			Name:     c.name,
			Role:     c.role,
			Online:   !c.stale,
		})
	}
	return View{
		ID:         s.ID,
		Status:     s.state.Status,
		Turn:       s.state.Turn,
		NumClients: len(s.clients),
		State:      s.state,
		LastSeq:    s.log.LastSeq(),
		Presence:   presence,
	}
}

func (s *Session) persistAsync() {
	snap, err := persist.FromState(s.state, s.log.LastSeq())
	if err != nil {
		s.logger.Warn("snapshot encode failed", zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			s.logger.Warn("snapshot save failed", zap.Error(err))
		}
	}()
}

func (s *Session) shutdown() {
	for id, c := range s.clients {
		close(c.outbox)
		delete(s.clients, id)
	}
	s.cancel()
	s.logger.Info("session stopped")
}

// logCapHint bounds how much history a snapshot reply carries.
func (s *Session) logCapHint() int { return eventlog.DefaultCap }

func filterForRole(events []engine.Event, role engine.Role) []engine.Event {
	out := make([]engine.Event, 0, len(events))
	for _, e := range events {
		if engine.VisibleTo(e, role) {
			out = append(out, e)
		}
	}
	return out
}
