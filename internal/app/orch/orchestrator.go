// Package orch ties the registry, rooms, calls, chat and presence together
// around the lifecycle of a single connection.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/app/call"
	"github.com/dkeye/relay/internal/app/chat"
	"github.com/dkeye/relay/internal/app/presence"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/dkeye/relay/internal/store"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRegistered = errors.New("connection not registered")
	ErrNotInRoom     = errors.New("connection has not joined the room")
	ErrSuperseded    = errors.New("connection superseded by a newer registration")
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Membership
	Policy   app.Policy
	Gate     *app.RoomGate
	Calls    *call.Engine
	Chat     *chat.Relay
	Presence *presence.Broadcaster
	Store    store.Store
	Metrics  *metrics.Metrics

	iceServers []webrtc.ICEServer
	timeout    time.Duration
}

type Options struct {
	Store        store.Store
	Policy       app.Policy
	Metrics      *metrics.Metrics
	OpenRooms    bool
	StoreTimeout time.Duration
	ICEServers   []webrtc.ICEServer
}

func New(opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	o := &Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewMembership(),
		Policy:     opts.Policy,
		Store:      opts.Store,
		Metrics:    opts.Metrics,
		iceServers: opts.ICEServers,
		timeout:    opts.StoreTimeout,
	}
	o.Gate = &app.RoomGate{Members: opts.Store, Open: opts.OpenRooms, Timeout: opts.StoreTimeout}
	o.Calls = call.NewEngine(o.Registry, o,
		call.WithHistory(opts.Store, opts.StoreTimeout),
		call.WithMetrics(opts.Metrics),
	)
	o.Chat = chat.NewRelay(opts.Store, o.Rooms, o, opts.Metrics, opts.StoreTimeout)
	o.Presence = presence.NewBroadcaster(o.Registry, o)
	return o
}

// Connect tracks a freshly opened connection. It stays anonymous until it
// registers.
func (o *Orchestrator) Connect(conn core.Connection) {
	o.Registry.Attach(conn)
	o.updateGauges()
}

// Register binds conn to user. An earlier connection of the same user stays
// open but is told it no longer receives presence or calls.
func (o *Orchestrator) Register(conn core.Connection, user domain.UserID) error {
	displaced, err := o.Registry.Register(user, conn.ID())
	if err != nil {
		return err
	}
	if displaced != nil {
		log.Info().Str("module", "app.orch").Str("user", string(user)).Str("conn", string(displaced.ID())).Msg("connection superseded")
		o.Deliver(displaced, core.Event{Type: core.EvPresenceSuperseded, User: user})
	}

	o.Deliver(conn, core.Event{Type: core.EvRegistered, User: user, ICEServers: o.iceServers})
	o.updateGauges()
	o.Presence.Publish()
	return nil
}

// Disconnect purges conn from every structure and closes it. It is safe to
// call from any goroutine and any number of times.
func (o *Orchestrator) Disconnect(conn core.Connection) {
	_, user, current, ok := o.Registry.Detach(conn.ID())
	if !ok {
		return
	}
	rooms := o.Rooms.RemoveConnection(conn.ID())
	conn.Close()
	o.updateGauges()

	log.Info().Str("module", "app.orch").Str("conn", string(conn.ID())).Str("user", string(user)).Bool("current", current).Int("rooms", len(rooms)).Msg("disconnected")
	if !current {
		return
	}
	o.Calls.Disconnect(context.Background(), user)
	o.Presence.Publish()
}

// DisconnectAll drops every open connection. Used on shutdown.
func (o *Orchestrator) DisconnectAll() int {
	conns := o.Registry.Connections()
	for _, c := range conns {
		o.Disconnect(c)
	}
	return len(conns)
}

// Identity returns the user conn registered as.
func (o *Orchestrator) Identity(conn core.Connection) (domain.UserID, bool) {
	return o.Registry.UserOf(conn.ID())
}

// callIdentity resolves conn for call signaling, which only the user's
// current connection may take part in.
func (o *Orchestrator) callIdentity(conn core.Connection) (domain.UserID, error) {
	if user, ok := o.Registry.Current(conn.ID()); ok {
		return user, nil
	}
	if _, ok := o.Registry.UserOf(conn.ID()); ok {
		return "", ErrSuperseded
	}
	return "", ErrNotRegistered
}

func (o *Orchestrator) ICEServers() []webrtc.ICEServer {
	return o.iceServers
}

func (o *Orchestrator) WhoAmI(conn core.Connection) {
	user, _ := o.Identity(conn)
	o.Deliver(conn, core.Event{Type: core.EvWhoAmI, User: user, Rooms: o.Rooms.RoomsOf(conn.ID())})
}

func (o *Orchestrator) OnlineUsers() []domain.UserID {
	return o.Registry.Snapshot()
}

// CallHistory lists the finished calls user took part in, newest first.
func (o *Orchestrator) CallHistory(ctx context.Context, user domain.UserID, limit int) ([]domain.CallRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.Store.ListCalls(ctx, user, limit)
}

func (o *Orchestrator) updateGauges() {
	conns, users := o.Registry.Counts()
	o.Metrics.OpenConnections.Set(float64(conns))
	o.Metrics.OnlineUsers.Set(float64(users))
}
