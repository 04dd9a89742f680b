package signal

import (
	"context"
	"errors"

	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrIdentityMismatch = errors.New("user_id does not match the authenticated user")

// handleRegister binds the connection to its authenticated user. A user_id
// in the payload is optional but must agree with the session.
func (ctl *SignalWSController) handleRegister(_ context.Context, s *session, data []byte) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if !ctl.decode(s, data, &p) {
		return
	}
	if p.UserID != "" {
		claimed, err := domain.ParseUserID(p.UserID)
		if err != nil {
			ctl.fail(s, err)
			return
		}
		if claimed != s.user {
			log.Warn().Str("module", "signal").Str("conn", string(s.conn.ID())).Str("user", string(s.user)).Str("claimed", string(claimed)).Msg("register identity mismatch")
			ctl.fail(s, ErrIdentityMismatch)
			return
		}
	}
	ctl.fail(s, ctl.Orch.Register(s.conn, s.user))
}

func (ctl *SignalWSController) handleWhoAmI(_ context.Context, s *session, _ []byte) {
	ctl.Orch.WhoAmI(s.conn)
}
