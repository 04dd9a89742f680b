package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

// peerPayload names the other side of a call. Initiate and end use "to",
// accept and decline name the caller in "from".
type peerPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
}

func (ctl *SignalWSController) parsePeer(s *session, raw string) (domain.UserID, bool) {
	user, err := domain.ParseUserID(raw)
	if err != nil {
		ctl.fail(s, err)
		return "", false
	}
	return user, true
}

func (ctl *SignalWSController) handleInitiateCall(ctx context.Context, s *session, data []byte) {
	var p peerPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	if callee, ok := ctl.parsePeer(s, p.To); ok {
		ctl.fail(s, ctl.Orch.InitiateCall(ctx, s.conn, callee))
	}
}

func (ctl *SignalWSController) handleAcceptCall(ctx context.Context, s *session, data []byte) {
	var p peerPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	if caller, ok := ctl.parsePeer(s, p.From); ok {
		ctl.fail(s, ctl.Orch.AcceptCall(ctx, s.conn, caller))
	}
}

func (ctl *SignalWSController) handleDeclineCall(ctx context.Context, s *session, data []byte) {
	var p peerPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	if caller, ok := ctl.parsePeer(s, p.From); ok {
		ctl.fail(s, ctl.Orch.DeclineCall(ctx, s.conn, caller))
	}
}

func (ctl *SignalWSController) handleEndCall(ctx context.Context, s *session, data []byte) {
	var p peerPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	if target, ok := ctl.parsePeer(s, p.To); ok {
		ctl.fail(s, ctl.Orch.EndCall(ctx, s.conn, target))
	}
}

// handleNegotiation relays offer, answer and ice-candidate. The SDP or
// candidate in payload is forwarded byte for byte.
func (ctl *SignalWSController) handleNegotiation(ctx context.Context, s *session, data []byte) {
	var p struct {
		Type    core.EventType  `json:"type"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}
	if !ctl.decode(s, data, &p) {
		return
	}
	if target, ok := ctl.parsePeer(s, p.To); ok {
		ctl.fail(s, ctl.Orch.RelayNegotiation(ctx, s.conn, p.Type, target, p.Payload))
	}
}
