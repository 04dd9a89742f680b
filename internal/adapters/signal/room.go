package signal

import (
	"context"

	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	Room string `json:"room"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, s *session, data []byte) {
	var p roomPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	room, err := domain.ParseRoomID(p.Room)
	if err != nil {
		ctl.fail(s, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(s.conn.ID())).Str("room", string(room)).Msg("join")
	ctl.fail(s, ctl.Orch.Join(ctx, s.conn, room))
}

// handleLeave drops the room subscription; the connection stays open.
func (ctl *SignalWSController) handleLeave(_ context.Context, s *session, data []byte) {
	var p roomPayload
	if !ctl.decode(s, data, &p) {
		return
	}
	room, err := domain.ParseRoomID(p.Room)
	if err != nil {
		ctl.fail(s, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(s.conn.ID())).Str("room", string(room)).Msg("leave")
	ctl.Orch.Leave(s.conn, room)
}

func (ctl *SignalWSController) handleGroupMessage(ctx context.Context, s *session, data []byte) {
	var p struct {
		Room        string             `json:"room"`
		ContentType domain.ContentType `json:"content_type"`
		Content     string             `json:"content"`
		MediaURL    string             `json:"media_url"`
	}
	if !ctl.decode(s, data, &p) {
		return
	}
	room, err := domain.ParseRoomID(p.Room)
	if err != nil {
		ctl.fail(s, err)
		return
	}
	if p.ContentType == "" {
		p.ContentType = domain.ContentText
	}
	_, err = ctl.Orch.PostMessage(ctx, s.conn, room, p.ContentType, p.Content, p.MediaURL)
	ctl.fail(s, err)
}
