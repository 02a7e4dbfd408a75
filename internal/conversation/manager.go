package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teangalab/beal/internal/observe"
	"github.com/teangalab/beal/internal/record"
)

// Manager serializes session access per user and persists sessions around
// every engine call. Two concurrent requests for the same user never
// interleave state transitions; different users require no coordination.
type Manager struct {
	store   record.Store
	engine  *Engine
	metrics *observe.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	log   *slog.Logger
}

// NewManager creates a Manager around engine. A nil metrics uses the
// package-level default; a nil logger discards logs.
func NewManager(store record.Store, engine *Engine, m *observe.Metrics, log *slog.Logger) *Manager {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:   store,
		engine:  engine,
		metrics: m,
		locks:   make(map[string]*sync.Mutex),
		log:     log,
	}
}

// lockFor returns the per-user mutex, creating it on first use.
func (m *Manager) lockFor(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// withSession loads (or lazily creates) the user's session, runs fn under
// the per-user lock, and persists the session afterwards. The session is
// persisted even when fn folded a failure into its response, since history
// turns were appended either way.
func (m *Manager) withSession(ctx context.Context, userID string, fn func(*record.ConversationSession) (Response, error)) (Response, error) {
	if userID == "" {
		return Response{}, errors.New("conversation: user id must not be empty")
	}

	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	sess, err := m.store.GetSession(ctx, userID)
	if errors.Is(err, record.ErrNotFound) {
		sess = record.ConversationSession{UserID: userID, State: record.StateIdle}
	} else if err != nil {
		return Response{}, fmt.Errorf("conversation: load session: %w", err)
	}

	wasActive := sess.State != record.StateIdle

	resp, fnErr := fn(&sess)
	if fnErr != nil {
		return Response{}, fnErr
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return Response{}, fmt.Errorf("conversation: save session: %w", err)
	}

	nowActive := sess.State != record.StateIdle
	switch {
	case nowActive && !wasActive:
		m.metrics.RecordSessionActive(ctx, 1)
	case !nowActive && wasActive:
		m.metrics.RecordSessionActive(ctx, -1)
	}
	return resp, nil
}

// Submit feeds one input (text or recorded-audio path) into the user's
// session.
func (m *Manager) Submit(ctx context.Context, userID, input string) (Response, error) {
	return m.withSession(ctx, userID, func(sess *record.ConversationSession) (Response, error) {
		return m.engine.Process(ctx, sess, input)
	})
}

// StartRecording begins reviewing a specific recording.
func (m *Manager) StartRecording(ctx context.Context, userID, recordingID string) (Response, error) {
	return m.withSession(ctx, userID, func(sess *record.ConversationSession) (Response, error) {
		return m.engine.StartRecording(ctx, sess, recordingID)
	})
}

// SelectRandom picks a random segment needing review across all recordings.
func (m *Manager) SelectRandom(ctx context.Context, userID string) (Response, error) {
	return m.withSession(ctx, userID, func(sess *record.ConversationSession) (Response, error) {
		return m.engine.SelectRandomUnconfirmed(ctx, sess)
	})
}

// Advance moves to the next entry needing review in the active recording.
func (m *Manager) Advance(ctx context.Context, userID string) (Response, error) {
	return m.withSession(ctx, userID, func(sess *record.ConversationSession) (Response, error) {
		return m.engine.AdvanceToNextEntry(ctx, sess)
	})
}

// Reset returns the user's session to idle and truncates its history.
func (m *Manager) Reset(ctx context.Context, userID string) (Response, error) {
	return m.withSession(ctx, userID, func(sess *record.ConversationSession) (Response, error) {
		return m.engine.Reset(ctx, sess)
	})
}

// Session returns the user's persisted session without mutating it.
// Returns [record.ErrNotFound] when the user has no session yet.
func (m *Manager) Session(ctx context.Context, userID string) (record.ConversationSession, error) {
	return m.store.GetSession(ctx, userID)
}
