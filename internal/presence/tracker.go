// Package presence derives a consistent online/offline view of platform users
// from the realtime event stream.
//
// The tracker is the single writer of presence state: it mutates its maps only
// from the realtime read loop, and exposes read-only queries to everyone else.
package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/edumate-io/edumate_client/internal/realtime"
	"github.com/edumate-io/edumate_client/pkg/logger"
)

// Conn is the slice of the realtime client the tracker needs.
type Conn interface {
	On(event string, handler realtime.Handler) *realtime.Subscription
	OnConnect(fn func()) *realtime.Subscription
	Emit(event string, payload any)
}

// Tracker maintains the set of currently-online users and last-seen timestamps
// for users that went offline.
//
// Invariant: a userId is never simultaneously in the online set and the
// last-seen map; every transition moves it from one to the other.
type Tracker struct {
	log logger.Logger

	mu       sync.RWMutex
	online   map[string]realtime.OnlineUser
	lastSeen map[string]time.Time

	subs []*realtime.Subscription
}

// New creates a detached tracker. Call Attach to start consuming events.
func New(log logger.Logger) *Tracker {
	return &Tracker{
		log:      log,
		online:   make(map[string]realtime.OnlineUser),
		lastSeen: make(map[string]time.Time),
	}
}

// Attach subscribes the tracker to the connection's presence events and
// requests an authoritative snapshot. Close undoes everything Attach did.
func (t *Tracker) Attach(conn Conn) {
	t.subs = append(t.subs,
		conn.On(realtime.EventOnlineList, t.handleSnapshot),
		conn.On(realtime.EventUserOnline, t.handleUserOnline),
		conn.On(realtime.EventUserOffline, t.handleUserOffline),
		// The connection may not be up yet, and emits are dropped while it is
		// down; re-request the snapshot after every (re)connect so the tracker
		// always resyncs from the authoritative list.
		conn.OnConnect(func() { conn.Emit(realtime.EventGetOnline, nil) }),
	)

	// Resync point: the snapshot reply replaces whatever state we hold.
	conn.Emit(realtime.EventGetOnline, nil)
}

// Close unsubscribes all handlers. The tracker keeps its last state but stops
// receiving updates; it can be re-attached.
func (t *Tracker) Close() {
	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
	t.subs = nil
}

func (t *Tracker) handleSnapshot(data json.RawMessage) {
	snapshot, err := realtime.DecodeOnlineList(data)
	if err != nil {
		t.log.Warn("Dropping malformed presence snapshot", logger.ErrorField(err))
		return
	}

	online := make(map[string]realtime.OnlineUser, len(snapshot.Users))
	for _, u := range snapshot.Users {
		online[u.UserID] = u
	}
	lastSeen := make(map[string]time.Time, len(snapshot.LastSeenUsers))
	for _, e := range snapshot.LastSeenUsers {
		if _, isOnline := online[e.UserID]; isOnline {
			// The online set wins; the invariant holds even against a
			// contradictory snapshot.
			continue
		}
		lastSeen[e.UserID] = e.LastSeenAt
	}

	t.mu.Lock()
	t.online = online
	t.lastSeen = lastSeen
	t.mu.Unlock()

	t.log.Debug("Presence snapshot applied",
		logger.IntField("online", len(online)),
		logger.IntField("last_seen", len(lastSeen)))
}

func (t *Tracker) handleUserOnline(data json.RawMessage) {
	user, err := realtime.DecodeUserOnline(data)
	if err != nil {
		t.log.Warn("Dropping malformed user:online event", logger.ErrorField(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.online[user.UserID]; ok {
		return // idempotent
	}
	t.online[user.UserID] = user
	delete(t.lastSeen, user.UserID)
}

func (t *Tracker) handleUserOffline(data json.RawMessage) {
	event, err := realtime.DecodeUserOffline(data)
	if err != nil {
		t.log.Warn("Dropping malformed user:offline event", logger.ErrorField(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.online, event.UserID)
	t.lastSeen[event.UserID] = event.LastSeenAt
}

// IsOnline reports whether the user is in the online set.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// LastSeen returns the last-seen timestamp for a user. For an online user it
// returns the user's own lastSeenAt field (display-only, meaning "currently
// active"). For a user that was never seen it returns ok == false and the
// caller renders plain "Offline".
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if u, ok := t.online[userID]; ok {
		return u.LastSeenAt, true
	}
	if ts, ok := t.lastSeen[userID]; ok {
		return ts, true
	}
	return time.Time{}, false
}

// OnlineUsers returns a copy of the online set.
func (t *Tracker) OnlineUsers() []realtime.OnlineUser {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]realtime.OnlineUser, 0, len(t.online))
	for _, u := range t.online {
		users = append(users, u)
	}
	return users
}

// OnlineCount returns the size of the online set.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}
