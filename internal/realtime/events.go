package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server-pushed event names.
const (
	EventOnlineList  = "users:online-list"
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
)

// Client-emitted event names.
const (
	EventGetOnline  = "users:get-online"
	EventJoinClass  = "join:class"
	EventLeaveClass = "leave:class"
)

// Envelope is the wire framing for every message on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OnlineUser describes a currently-connected user as pushed by the server.
type OnlineUser struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
}

// LastSeenEntry maps an offline user to the time it was last online.
type LastSeenEntry struct {
	UserID     string    `json:"userId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// OnlineListPayload is the authoritative presence snapshot.
type OnlineListPayload struct {
	Users         []OnlineUser    `json:"users"`
	LastSeenUsers []LastSeenEntry `json:"lastSeenUsers"`
}

// UserOfflinePayload announces a single user going offline.
type UserOfflinePayload struct {
	UserID     string    `json:"userId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// RoomPayload addresses a class-scoped room.
type RoomPayload struct {
	ClassID string `json:"classId"`
}

// DecodeOnlineList validates and decodes a users:online-list payload.
func DecodeOnlineList(data json.RawMessage) (OnlineListPayload, error) {
	var p OnlineListPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return OnlineListPayload{}, fmt.Errorf("invalid %s payload: %w", EventOnlineList, err)
	}
	for _, u := range p.Users {
		if u.UserID == "" {
			return OnlineListPayload{}, fmt.Errorf("invalid %s payload: user without userId", EventOnlineList)
		}
	}
	for _, e := range p.LastSeenUsers {
		if e.UserID == "" {
			return OnlineListPayload{}, fmt.Errorf("invalid %s payload: last-seen entry without userId", EventOnlineList)
		}
	}
	return p, nil
}

// DecodeUserOnline validates and decodes a user:online payload.
func DecodeUserOnline(data json.RawMessage) (OnlineUser, error) {
	var u OnlineUser
	if err := json.Unmarshal(data, &u); err != nil {
		return OnlineUser{}, fmt.Errorf("invalid %s payload: %w", EventUserOnline, err)
	}
	if u.UserID == "" {
		return OnlineUser{}, fmt.Errorf("invalid %s payload: missing userId", EventUserOnline)
	}
	return u, nil
}

// DecodeUserOffline validates and decodes a user:offline payload.
func DecodeUserOffline(data json.RawMessage) (UserOfflinePayload, error) {
	var p UserOfflinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return UserOfflinePayload{}, fmt.Errorf("invalid %s payload: %w", EventUserOffline, err)
	}
	if p.UserID == "" {
		return UserOfflinePayload{}, fmt.Errorf("invalid %s payload: missing userId", EventUserOffline)
	}
	return p, nil
}
