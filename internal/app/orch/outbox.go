package orch

import (
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/rs/zerolog/log"
)

// Deliver sends ev to conn. A failed send goes through the policy and may
// disconnect conn before Deliver returns.
func (o *Orchestrator) Deliver(conn core.Connection, ev core.Event) bool {
	f, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(ev.Type)).Msg("encode event")
		return false
	}
	return o.send(conn, f, ev.Type)
}

// Broadcast encodes ev once and sends it to every conn. It returns how many
// sends succeeded.
func (o *Orchestrator) Broadcast(conns []core.Connection, ev core.Event) int {
	if len(conns) == 0 {
		return 0
	}
	f, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(ev.Type)).Msg("encode event")
		return 0
	}
	n := 0
	for _, c := range conns {
		if o.send(c, f, ev.Type) {
			n++
		}
	}
	return n
}

// SendError reports a failed request back to conn.
func (o *Orchestrator) SendError(conn core.Connection, code string, err error) {
	ev := core.Event{Type: core.EvError, Code: code}
	if err != nil {
		ev.Error = err.Error()
	}
	o.Deliver(conn, ev)
}

func (o *Orchestrator) send(conn core.Connection, f core.Frame, t core.EventType) bool {
	err := conn.TrySend(f)
	if err == nil {
		return true
	}
	o.Metrics.FailedSends.Inc()
	log.Warn().Err(err).Str("module", "app.orch").Str("conn", string(conn.ID())).Str("type", string(t)).Msg("send failed")
	if o.Policy.OnSendFailure(conn, err) == app.Disconnect {
		o.Disconnect(conn)
	}
	return false
}
