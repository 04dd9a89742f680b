package signal

import (
	"context"

	"github.com/dkeye/relay/internal/core"
)

func (ctl *SignalWSController) handlePing(_ context.Context, s *session, _ []byte) {
	ctl.Orch.Deliver(s.conn, core.Event{Type: core.EvPong})
}
