// Package session owns conversation sessions and their message logs.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/model"
)

// DefaultIdleTimeout is the idle age after which a sweep removes a session.
const DefaultIdleTimeout = 24 * time.Hour

// Archive is the seam for a durable backing store. The in-memory Store writes
// through to it and rebuilds from it on Restore; archive failures are logged
// and never fail the in-memory operation.
type Archive interface {
	SaveSession(ctx context.Context, s *model.Session) error
	AppendMessage(ctx context.Context, sessionID string, msg model.Message) error
	ClearMessages(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	LoadAll(ctx context.Context) ([]*model.Session, error)
}

// Config holds configuration for the session store.
type Config struct {
	// Archive is optional; nil keeps the store purely in memory.
	Archive Archive

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// entry guards one session. Its lock is held only for the duration of a single
// store operation and is distinct from the chat-cycle lock returned by Lock.
type entry struct {
	mu      sync.RWMutex
	session *model.Session
}

type cycleLock struct {
	mu   sync.Mutex
	refs int
}

// Store is the in-memory session store. It is safe for concurrent use; every
// mutation of a session's message log goes through it.
type Store struct {
	archive Archive
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	cycleMu sync.Mutex
	cycles  map[string]*cycleLock
}

// NewStore creates a new session store.
func NewStore(config Config) *Store {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		archive:  config.Archive,
		now:      now,
		sessions: make(map[string]*entry),
		cycles:   make(map[string]*cycleLock),
	}
}

// Create returns the session with the given id, creating it when absent.
// An empty id allocates a fresh one. Creating an existing id returns the
// stored session unchanged.
func (s *Store) Create(ctx context.Context, id, userID string) (*model.Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if e, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return e.snapshot(), nil
	}
	sess := model.NewSession(id, userID, s.now())
	e := &entry{session: sess}
	s.sessions[id] = e
	snap := e.snapshot()
	s.mu.Unlock()

	log.Info().Str("component", "session").Str("session_id", id).Msg("session created")
	s.archiveSave(ctx, snap)
	return snap, nil
}

// Get returns a snapshot of the session. It does not touch the activity timestamp.
func (s *Store) Get(id string) (*model.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return e.snapshot(), nil
}

// Exists reports whether a session with the given id is stored.
func (s *Store) Exists(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

// AppendMessage appends msg to the session log, stamps its session id and
// bumps the session's last activity. The stamped message is returned.
func (s *Store) AppendMessage(ctx context.Context, id string, msg model.Message) (model.Message, error) {
	e, ok := s.lookup(id)
	if !ok {
		return msg, model.ErrSessionNotFound
	}

	msg = msg.Clone()
	msg.SessionID = id
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	e.mu.Lock()
	e.session.Messages = append(e.session.Messages, msg)
	s.touchLocked(e.session)
	e.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.AppendMessage(ctx, id, msg); err != nil {
			log.Warn().Err(err).Str("component", "session").Str("session_id", id).Msg("archive append failed")
		}
	}
	return msg, nil
}

// RecentMessages returns the last limit messages of the session, oldest first.
// If the log is shorter than limit the whole log is returned; a limit of zero
// or less also returns the whole log.
func (s *Store) RecentMessages(id string, limit int) ([]model.Message, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, model.ErrSessionNotFound
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	recent := e.session.RecentMessages(limit)
	out := make([]model.Message, len(recent))
	for i, m := range recent {
		out[i] = m.Clone()
	}
	return out, nil
}

// MessageCount returns the length of the session's message log.
func (s *Store) MessageCount(id string) (int, error) {
	e, ok := s.lookup(id)
	if !ok {
		return 0, model.ErrSessionNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.session.Messages), nil
}

// UpdateContext sets a context key on the session and bumps its activity.
func (s *Store) UpdateContext(ctx context.Context, id, key string, value any) error {
	return s.mutate(ctx, id, func(sess *model.Session) {
		sess.Context[key] = value
		if key == model.ContextKeyWorkspacePath {
			if p, ok := value.(string); ok {
				sess.WorkspacePath = p
			}
		}
	})
}

// SetWorkspace sets the session workspace path and the matching context key.
func (s *Store) SetWorkspace(ctx context.Context, id, path string) error {
	return s.UpdateContext(ctx, id, model.ContextKeyWorkspacePath, path)
}

// ClearMessages empties the session's message log.
func (s *Store) ClearMessages(ctx context.Context, id string) error {
	e, ok := s.lookup(id)
	if !ok {
		return model.ErrSessionNotFound
	}

	e.mu.Lock()
	e.session.Messages = []model.Message{}
	s.touchLocked(e.session)
	e.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.ClearMessages(ctx, id); err != nil {
			log.Warn().Err(err).Str("component", "session").Str("session_id", id).Msg("archive clear failed")
		}
	}
	return nil
}

// Delete removes the session and its log. It reports whether the session existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	log.Info().Str("component", "session").Str("session_id", id).Msg("session deleted")
	if s.archive != nil {
		if err := s.archive.DeleteSession(ctx, id); err != nil {
			log.Warn().Err(err).Str("component", "session").Str("session_id", id).Msg("archive delete failed")
		}
	}
	return true
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ListActive returns a snapshot of every stored session ordered by creation time.
func (s *Store) ListActive() []*model.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListByUser returns the sessions owned by userID.
func (s *Store) ListByUser(userID string) []*model.Session {
	all := s.ListActive()
	out := make([]*model.Session, 0, len(all))
	for _, sess := range all {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out
}

// Lock acquires the chat-cycle lock for a session and returns its release
// func. Cycles on the same session are serialized; cycles on different
// sessions never contend. The session does not need to exist.
func (s *Store) Lock(id string) (unlock func()) {
	s.cycleMu.Lock()
	l, ok := s.cycles[id]
	if !ok {
		l = &cycleLock{}
		s.cycles[id] = l
	}
	l.refs++
	s.cycleMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.cycleMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.cycles, id)
			}
			s.cycleMu.Unlock()
		})
	}
}

// Restore loads every archived session into memory. Sessions already present
// in memory are left untouched.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	sessions, err := s.archive.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	s.mu.Lock()
	for _, sess := range sessions {
		if _, ok := s.sessions[sess.ID]; ok {
			continue
		}
		if sess.Messages == nil {
			sess.Messages = []model.Message{}
		}
		if sess.Context == nil {
			sess.Context = map[string]any{}
		}
		s.sessions[sess.ID] = &entry{session: sess}
		restored++
	}
	s.mu.Unlock()

	log.Info().Str("component", "session").Int("count", restored).Msg("sessions restored from archive")
	return restored, nil
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *Store) mutate(ctx context.Context, id string, fn func(sess *model.Session)) error {
	e, ok := s.lookup(id)
	if !ok {
		return model.ErrSessionNotFound
	}

	e.mu.Lock()
	fn(e.session)
	s.touchLocked(e.session)
	e.mu.Unlock()

	s.archiveSave(ctx, e.snapshot())
	return nil
}

// touchLocked bumps last activity, never moving it before creation time.
func (s *Store) touchLocked(sess *model.Session) {
	now := s.now()
	if now.Before(sess.CreatedAt) {
		now = sess.CreatedAt
	}
	sess.LastActivity = now
}

func (s *Store) archiveSave(ctx context.Context, sess *model.Session) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveSession(ctx, sess); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("session_id", sess.ID).Msg("archive save failed")
	}
}

func (e *entry) snapshot() *model.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.Clone()
}
