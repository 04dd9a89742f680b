package app

import (
	"errors"

	"github.com/dkeye/relay/internal/core"
)

type FailureAction int

const (
	NoAction FailureAction = iota
	Disconnect
)

// Policy decides what a failed delivery means for its target.
type Policy interface {
	OnSendFailure(conn core.Connection, err error) FailureAction
}

// SimplePolicy treats every failed or backed-up send as a dead peer.
type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(conn core.Connection, err error) FailureAction {
	return Disconnect
}

// TolerantPolicy keeps slow peers connected and only drops closed ones.
type TolerantPolicy struct{}

func (TolerantPolicy) OnSendFailure(conn core.Connection, err error) FailureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return NoAction
	}
	return Disconnect
}
