package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/app/chat"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// session is the per-connection context handed to every handler.
type session struct {
	conn    *WsSignalConn
	user    domain.UserID
	limiter *rate.Limiter
}

type handlerFunc func(ctx context.Context, s *session, data []byte)

func (ctl *SignalWSController) handlerTable() map[core.EventType]handlerFunc {
	return map[core.EventType]handlerFunc{
		core.EvRegister:         ctl.handleRegister,
		core.EvWhoAmI:           ctl.handleWhoAmI,
		core.EvPing:             ctl.handlePing,
		core.EvJoinRoom:         ctl.handleJoin,
		core.EvLeaveRoom:        ctl.handleLeave,
		core.EvSendGroupMessage: ctl.handleGroupMessage,
		core.EvInitiateCall:     ctl.handleInitiateCall,
		core.EvAcceptCall:       ctl.handleAcceptCall,
		core.EvDeclineCall:      ctl.handleDeclineCall,
		core.EvEndCall:          ctl.handleEndCall,
		core.EvOffer:            ctl.handleNegotiation,
		core.EvAnswer:           ctl.handleNegotiation,
		core.EvICECandidate:     ctl.handleNegotiation,
	}
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Settings.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				ctl.Orch.Disconnect(c)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump write error")
				ctl.Orch.Disconnect(c)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.Settings.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ping failed")
				ctl.Orch.Disconnect(c)
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	c := s.conn
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump closing")
		cancel()
		ctl.Orch.Disconnect(c)
	}()

	c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, s, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	var env struct {
		Type core.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.conn.ID())).Msg("bad json")
		ctl.sendError(s, "bad_payload", err)
		return
	}
	if !s.limiter.Allow() {
		ctl.sendError(s, "rate_limited", nil)
		return
	}

	h, ok := ctl.handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(s, "unknown_type", nil)
		return
	}
	h(ctx, s, data)
}

// decode unmarshals a handler payload, answering bad_payload on failure.
func (ctl *SignalWSController) decode(s *session, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.conn.ID())).Msg("bad payload")
		ctl.sendError(s, "bad_payload", err)
		return false
	}
	return true
}

func (ctl *SignalWSController) sendError(s *session, code string, err error) {
	ctl.Orch.SendError(s.conn, code, err)
}

// fail reports err to the client under its wire code. nil is a no-op.
func (ctl *SignalWSController) fail(s *session, err error) {
	if err == nil {
		return
	}
	ctl.sendError(s, errorCode(err), err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, orch.ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, orch.ErrSuperseded):
		return "superseded"
	case errors.Is(err, orch.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, app.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat.ErrPersistence):
		return "persistence_failed"
	case errors.Is(err, domain.ErrUnknownContentType),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrAmbiguousContent):
		return "invalid_message"
	case errors.Is(err, domain.ErrRoomIDEmpty), errors.Is(err, domain.ErrRoomIDTooLong):
		return "invalid_room"
	case errors.Is(err, domain.ErrUserIDEmpty), errors.Is(err, domain.ErrUserIDTooLong):
		return "invalid_user"
	}
	return "internal"
}
