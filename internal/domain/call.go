package domain

import "time"

type CallPhase int

const (
	CallIdle CallPhase = iota
	CallRinging
	CallConnected
	CallEnded
	CallDeclined
)

func (p CallPhase) String() string {
	switch p {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	case CallDeclined:
		return "declined"
	}
	return "unknown"
}

type CallStatus string

const (
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
	CallStatusDeclined CallStatus = "declined"
)

// CallRecord is the history entry written once a call attempt terminates.
type CallRecord struct {
	ID        string     `json:"id"`
	Caller    UserID     `json:"caller"`
	Callee    UserID     `json:"callee"`
	Status    CallStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
}
