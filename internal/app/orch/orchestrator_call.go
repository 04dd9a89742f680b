package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/relay/internal/app/call"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// InitiateCall rings callee. Unreachable and busy outcomes are reported back
// to conn only.
func (o *Orchestrator) InitiateCall(ctx context.Context, conn core.Connection, callee domain.UserID) error {
	caller, err := o.callIdentity(conn)
	if err != nil {
		return err
	}
	err = o.Calls.Initiate(ctx, caller, callee)
	switch {
	case errors.Is(err, call.ErrUnreachable):
		o.Deliver(conn, core.Event{Type: core.EvCallUnreachable, User: callee})
		return nil
	case errors.Is(err, call.ErrBusy):
		o.Deliver(conn, core.Event{Type: core.EvCallBusy, User: callee})
		return nil
	case err != nil:
		return err
	}
	// The caller may have disconnected or been superseded while the attempt
	// was being placed; Disconnect would have missed it.
	if _, ok := o.Registry.Current(conn.ID()); !ok {
		log.Info().Str("module", "app.orch").Str("caller", string(caller)).Str("callee", string(callee)).Msg("caller gone, dropping new call")
		_ = o.Calls.End(ctx, caller, callee)
	}
	return nil
}

func (o *Orchestrator) AcceptCall(ctx context.Context, conn core.Connection, caller domain.UserID) error {
	callee, err := o.callIdentity(conn)
	if err != nil {
		return err
	}
	return ignoreStale(o.Calls.Accept(ctx, callee, caller), "accept-call", callee)
}

func (o *Orchestrator) DeclineCall(ctx context.Context, conn core.Connection, caller domain.UserID) error {
	callee, err := o.callIdentity(conn)
	if err != nil {
		return err
	}
	return ignoreStale(o.Calls.Decline(ctx, callee, caller), "decline-call", callee)
}

// RelayNegotiation forwards an offer, answer or candidate to target.
func (o *Orchestrator) RelayNegotiation(ctx context.Context, conn core.Connection, kind core.EventType, target domain.UserID, payload json.RawMessage) error {
	from, err := o.callIdentity(conn)
	if err != nil {
		return err
	}
	return ignoreStale(o.Calls.Relay(ctx, kind, from, target, payload), string(kind), from)
}

func (o *Orchestrator) EndCall(ctx context.Context, conn core.Connection, target domain.UserID) error {
	from, err := o.callIdentity(conn)
	if err != nil {
		return err
	}
	return ignoreStale(o.Calls.End(ctx, from, target), "end-call", from)
}

// ignoreStale swallows transitions that lost a race.
func ignoreStale(err error, event string, user domain.UserID) error {
	if errors.Is(err, call.ErrInvalidTransition) {
		log.Debug().Str("module", "app.orch").Str("event", event).Str("user", string(user)).Msg("ignored stale call event")
		return nil
	}
	return err
}
