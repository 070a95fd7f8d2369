package checkers

import (
	"context"
	"errors"
)

// ConnectionStatus reports whether a realtime connection is currently up.
type ConnectionStatus interface {
	IsConnected() bool
}

// RealtimeChecker reports the realtime channel as unhealthy while disconnected.
type RealtimeChecker struct {
	conn ConnectionStatus
	name string
}

// NewRealtimeChecker creates a health check over a realtime connection.
// If name is empty, it defaults to "realtime".
func NewRealtimeChecker(conn ConnectionStatus, name string) *RealtimeChecker {
	if name == "" {
		name = "realtime"
	}
	return &RealtimeChecker{conn: conn, name: name}
}

// Name returns the name of this health check.
func (r *RealtimeChecker) Name() string { return r.name }

// Check returns an error while the realtime connection is down.
func (r *RealtimeChecker) Check(_ context.Context) error {
	if !r.conn.IsConnected() {
		return errors.New("realtime connection is down")
	}
	return nil
}
