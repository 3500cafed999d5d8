// Package transport maintains a resilient line-oriented connection to a GPS
// receiver over a serial device, a TCP socket or a recorded log.
//
// Transport faults (timeouts, resets, removed devices) never leave this
// package: they are logged, recorded in the Snapshot and answered with a
// reconnect after a fixed delay. Consumers only see Lines pause and resume.
package transport

import (
	"context"
	"errors"
)

// ErrStopped is returned by operations on a transport that is not running.
var ErrStopped = errors.New("transport stopped")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Transport is a bidirectional line channel to one receiver.
type Transport interface {
	// Start begins the supervised connect loop. The loop ends when ctx is done
	// or Stop is called; either way Lines is closed.
	Start(ctx context.Context) error

	// Stop is idempotent. It releases the connection, drops queued commands
	// and closes the channel returned by Lines. Start may be called again.
	Stop()

	// Send queues a command for delivery. Fire and forget.
	Send(cmd string)

	// Lines returns the inbound channel of the current run. Each Start
	// creates a new channel.
	Lines() <-chan string

	Connected() bool
	State() State
	Snapshot() Snapshot
}

type Snapshot struct {
	Kind           string `json:"kind"`
	Endpoint       string `json:"endpoint,omitempty"`
	State          string `json:"state"`
	Running        bool   `json:"running"`
	LastError      string `json:"last_error,omitempty"`
	LastSeenUTC    string `json:"last_seen_utc,omitempty"`
	Lines          uint64 `json:"lines"`
	Connects       uint64 `json:"connects"`
	Failures       uint64 `json:"failures"`
	QueuedCommands int    `json:"queued_commands"`
}
