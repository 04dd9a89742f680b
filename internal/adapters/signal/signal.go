// Package signal is the websocket face of the relay: one read pump and one
// write pump per connection, inbound events dispatched by type.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/auth"
	"github.com/dkeye/relay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	ReadLimit       int64
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	EventsPerSecond float64
	Burst           int
	AllowedOrigins  []string
}

func DefaultSettings() Settings {
	return Settings{
		ReadLimit:       32768,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       5 * time.Second,
		SendBuffer:      32,
		EventsPerSecond: 20,
		Burst:           40,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Auth     auth.Authenticator
	Settings Settings

	upgrader websocket.Upgrader
	handlers map[core.EventType]handlerFunc
}

func NewSignalWSController(o *orch.Orchestrator, a auth.Authenticator, s Settings) *SignalWSController {
	def := DefaultSettings()
	if s.PingPeriod <= 0 {
		s.PingPeriod = def.PingPeriod
	}
	if s.PongWait <= s.PingPeriod {
		s.PongWait = s.PingPeriod * 10 / 9
	}
	if s.WriteWait <= 0 {
		s.WriteWait = def.WriteWait
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = def.SendBuffer
	}
	if s.ReadLimit <= 0 {
		s.ReadLimit = def.ReadLimit
	}

	ctl := &SignalWSController{
		Orch:     o,
		Auth:     a,
		Settings: s,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(s.AllowedOrigins)},
	}
	ctl.handlers = ctl.handlerTable()
	return ctl
}

type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades an authenticated request and starts the pumps. The
// pumps live until the connection drops or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	user, err := ctl.Auth.Identify(c)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Msg("ws rejected: unauthenticated")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.Settings.SendBuffer)
	s := &session{
		conn:    conn,
		user:    user,
		limiter: newEventLimiter(ctl.Settings.EventsPerSecond, ctl.Settings.Burst),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.ID())).Str("user", string(user)).Msg("new WS connection")
	ctl.Orch.Connect(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, s)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
