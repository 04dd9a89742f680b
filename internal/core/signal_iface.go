package core

import "errors"

// Frame is a raw encoded event.
type Frame []byte

// ConnID identifies one live client transport.
type ConnID string

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Connection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	ID() ConnID
	// TrySend queues f without blocking. A full queue yields ErrBackpressure.
	TrySend(f Frame) error
	Close()
}

// Outbox delivers events to connections. A failed delivery is handed to the
// implementation's failure policy; callers only learn whether it landed.
type Outbox interface {
	Deliver(conn Connection, ev Event) bool
	Broadcast(conns []Connection, ev Event) int
}
