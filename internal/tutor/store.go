// Package tutor manages chat sessions against the remote AI-tutor backend: a
// read-through cache of the session list, the active session's ordered message
// log, and the send/receive flow.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edumate-io/edumate_client/pkg/logger"
	"github.com/edumate-io/edumate_client/pkg/metrics"
	"github.com/edumate-io/edumate_client/pkg/prefixed_uuid"
)

// ErrNoActiveSession is returned by Send before any network call when the
// session id is empty.
var ErrNoActiveSession = errors.New("no session selected")

// API is the slice of the REST client the store needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// Store caches remote chat sessions and the active session's message log.
// Sends to the same session are serialized so request/response pairs always
// land in the log in order, even when callers race.
type Store struct {
	api API
	log logger.Logger
	m   *metrics.Metrics

	mu       sync.RWMutex
	sessions []ChatSession
	active   string
	messages []Message

	sendMu    sync.Mutex
	sendLocks map[string]*sync.Mutex
}

// New creates a session store. The metrics instance is optional.
func New(api API, log logger.Logger, m *metrics.Metrics) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{
		api:       api,
		log:       log,
		m:         m,
		sendLocks: make(map[string]*sync.Mutex),
	}, nil
}

// CreateSession requests a new session from the backend. The local session
// cache is not touched; callers follow up with Sessions() so the list and the
// server agree.
func (s *Store) CreateSession(ctx context.Context) (ChatSession, error) {
	var resp createSessionResponse
	if err := s.api.Post(ctx, "/api/sessions", nil, &resp); err != nil {
		return ChatSession{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.Info("Created tutor session", logger.StringField("session_id", resp.SessionID))
	return ChatSession{SessionID: resp.SessionID, CreatedAt: resp.CreatedAt}, nil
}

// Sessions fetches the full session list, replacing the local cache.
func (s *Store) Sessions(ctx context.Context) ([]ChatSession, error) {
	var resp listSessionsResponse
	if err := s.api.Get(ctx, "/api/sessions", &resp); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	s.mu.Lock()
	s.sessions = resp.Sessions
	s.mu.Unlock()

	return copySessions(resp.Sessions), nil
}

// History fetches the ordered message log for a session, replaces the local
// message cache and makes the session the active one.
func (s *Store) History(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	var resp historyResponse
	if err := s.api.Get(ctx, "/api/sessions/"+sessionID+"/history", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", sessionID, err)
	}

	s.mu.Lock()
	s.active = sessionID
	s.messages = resp.Messages
	s.mu.Unlock()

	return copyMessages(resp.Messages), nil
}

// Send sends a question to the session and waits for the full assistant reply;
// there is no streaming. On success the user message and the reply are
// appended, in that order, to the local log. On failure nothing is appended
// and the error carries a human-readable message for the caller to surface.
func (s *Store) Send(ctx context.Context, sessionID, content string) (Message, error) {
	return s.send(ctx, sessionID, content, "")
}

// SendWithAttachment is Send with an optional image attachment URL.
func (s *Store) SendWithAttachment(ctx context.Context, sessionID, content, imageURL string) (Message, error) {
	return s.send(ctx, sessionID, content, imageURL)
}

func (s *Store) send(ctx context.Context, sessionID, content, imageURL string) (Message, error) {
	if sessionID == "" {
		return Message{}, ErrNoActiveSession
	}

	// Serialize sends per session: racing callers queue here instead of
	// interleaving their request/response pairs in the log.
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	reqID := prefixed_uuid.New("req").String()
	start := time.Now()

	var resp queryResponse
	err := s.api.Post(ctx, "/api/chat/query", queryRequest{
		SessionID: sessionID,
		Question:  content,
		ImageURL:  imageURL,
		RequestID: reqID,
	}, &resp)

	if s.m != nil {
		s.m.ObserveChatSend(time.Since(start), err)
	}
	if err != nil {
		s.log.Warn("Tutor send failed",
			logger.StringField("session_id", sessionID),
			logger.StringField("request_id", reqID),
			logger.ErrorField(err))
		return Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	now := time.Now().UTC()
	userMsg := Message{Role: RoleUser, Content: content, ImageURL: imageURL, Timestamp: now}
	reply := Message{Role: RoleAssistant, Content: resp.Answer, Timestamp: now}

	s.mu.Lock()
	if s.active == sessionID {
		s.messages = append(s.messages, userMsg, reply)
	}
	s.mu.Unlock()

	return reply, nil
}

// DeleteSession requests deletion of a session. If the deleted session is the
// active one, the caller clears the active pointer and refreshes the list;
// the store deliberately leaves that ordering to the caller.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoActiveSession
	}
	if err := s.api.Delete(ctx, "/api/sessions/"+sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	s.log.Info("Deleted tutor session", logger.StringField("session_id", sessionID))
	return nil
}

// ClearActive drops the active-session pointer and its message log.
func (s *Store) ClearActive() {
	s.mu.Lock()
	s.active = ""
	s.messages = nil
	s.mu.Unlock()
}

// ActiveSession returns the id of the currently selected session, or "".
func (s *Store) ActiveSession() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Messages returns a copy of the active session's message log.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.messages)
}

// CachedSessions returns a copy of the last fetched session list.
func (s *Store) CachedSessions() []ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySessions(s.sessions)
}

func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	lock, ok := s.sendLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sendLocks[sessionID] = lock
	}
	return lock
}

func copyMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

func copySessions(in []ChatSession) []ChatSession {
	out := make([]ChatSession, len(in))
	copy(out, in)
	return out
}
