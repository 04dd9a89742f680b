package core

import (
	"encoding/json"

	"github.com/dkeye/relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

type EventType string

// Inbound, connection -> relay.
const (
	EvRegister         EventType = "register"
	EvJoinRoom         EventType = "join-room"
	EvLeaveRoom        EventType = "leave-room"
	EvInitiateCall     EventType = "initiate-call"
	EvAcceptCall       EventType = "accept-call"
	EvDeclineCall      EventType = "decline-call"
	EvEndCall          EventType = "end-call"
	EvSendGroupMessage EventType = "send-group-message"
	EvPing             EventType = "ping"
	EvWhoAmI           EventType = "whoami"
)

// Negotiation payloads travel in both directions under the same name.
const (
	EvOffer        EventType = "offer"
	EvAnswer       EventType = "answer"
	EvICECandidate EventType = "ice-candidate"
)

// Outbound, relay -> connection.
const (
	EvRegistered         EventType = "registered"
	EvPresence           EventType = "presence"
	EvPresenceSuperseded EventType = "presence-superseded"
	EvIncomingCall       EventType = "incoming-call"
	EvCallAccepted       EventType = "call-accepted"
	EvCallDeclined       EventType = "call-declined"
	EvCallEnded          EventType = "call-ended"
	EvCallUnreachable    EventType = "call-unreachable"
	EvCallBusy           EventType = "call-busy"
	EvRoomJoined         EventType = "room-joined"
	EvRoomLeft           EventType = "room-left"
	EvNewGroupMessage    EventType = "new-group-message"
	EvError              EventType = "error"
	EvPong               EventType = "pong"
)

// IsNegotiation reports whether t is relayed verbatim between call parties.
func (t EventType) IsNegotiation() bool {
	return t == EvOffer || t == EvAnswer || t == EvICECandidate
}

// Event is the outbound wire envelope. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType            `json:"type"`
	From       domain.UserID        `json:"from,omitempty"`
	User       domain.UserID        `json:"user,omitempty"`
	Users      []domain.UserID      `json:"users,omitempty"`
	Room       domain.RoomID        `json:"room,omitempty"`
	Rooms      []domain.RoomID      `json:"rooms,omitempty"`
	Message    *domain.GroupMessage `json:"message,omitempty"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
	ICEServers []webrtc.ICEServer   `json:"ice_servers,omitempty"`
	Code       string               `json:"code,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// presenceFrame keeps "users" on the wire even when nobody is online.
type presenceFrame struct {
	Type  EventType       `json:"type"`
	Users []domain.UserID `json:"users"`
}

func (e Event) Encode() (Frame, error) {
	var v any = e
	if e.Type == EvPresence {
		users := e.Users
		if users == nil {
			users = []domain.UserID{}
		}
		v = presenceFrame{Type: e.Type, Users: users}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
