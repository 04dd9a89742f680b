// Package coretest provides an in-memory core.Connection for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/relay/internal/core"
)

// Conn records every frame it accepts. It can be told to fail sends.
type Conn struct {
	id core.ConnID

	mu      sync.Mutex
	frames  []core.Frame
	closed  bool
	failErr error
}

func NewConn(id string) *Conn {
	return &Conn{id: core.ConnID(id)}
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.failErr != nil {
		return c.failErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailWith makes every following TrySend return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
}

// Events decodes everything received so far.
func (c *Conn) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Event, 0, len(c.frames))
	for _, f := range c.frames {
		var ev core.Event
		if err := json.Unmarshal(f, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// OfType returns the received events with the given type.
func (c *Conn) OfType(t core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range c.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// Outbox is a plain core.Outbox over coretest connections. Failed sends are
// counted and passed to OnFail when set.
type Outbox struct {
	OnFail func(conn core.Connection)

	mu     sync.Mutex
	failed int
}

func (o *Outbox) Deliver(conn core.Connection, ev core.Event) bool {
	f, err := ev.Encode()
	if err != nil {
		return false
	}
	if err := conn.TrySend(f); err != nil {
		o.mu.Lock()
		o.failed++
		o.mu.Unlock()
		if o.OnFail != nil {
			o.OnFail(conn)
		}
		return false
	}
	return true
}

func (o *Outbox) Broadcast(conns []core.Connection, ev core.Event) int {
	n := 0
	for _, c := range conns {
		if o.Deliver(c, ev) {
			n++
		}
	}
	return n
}

func (o *Outbox) Failed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}
