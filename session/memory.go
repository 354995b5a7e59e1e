package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"recipeagent"
)

const defaultMaxTurns = 3

// MemoryStore keeps sessions in process memory. Writers of one session are
// queued in arrival order; different sessions never wait on each other.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	maxTurns int
	now      func() time.Time
}

type entry struct {
	session Session
	// tail is closed when the most recently queued transaction finishes.
	tail    chan struct{}
	pending int
}

type Option func(*MemoryStore)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		m.now = now
	}
}

func NewMemoryStore(maxTurns int, opts ...Option) *MemoryStore {
	if maxTurns < 1 {
		maxTurns = defaultMaxTurns
	}
	m := &MemoryStore{
		sessions: make(map[string]*entry),
		maxTurns: maxTurns,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup returns the entry for id, creating it. Callers hold m.mu.
func (m *MemoryStore) lookup(id string) *entry {
	e, ok := m.sessions[id]
	if !ok {
		now := m.now()
		e = &entry{session: Session{ID: id, CreatedAt: now, UpdatedAt: now}}
		m.sessions[id] = e
	}
	return e
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(id).session.Clone(), nil
}

func (m *MemoryStore) Preferences(ctx context.Context, id string) (recipeagent.Preferences, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return recipeagent.Preferences{}, err
	}
	return s.Preferences, nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, id string, turn recipeagent.Turn) error {
	txn, err := m.Begin(ctx, id)
	if err != nil {
		return err
	}
	return txn.Commit(Delta{Turns: []recipeagent.Turn{turn}})
}

func (m *MemoryStore) CacheDetection(ctx context.Context, id, fingerprint string, result recipeagent.DetectionResult) error {
	txn, err := m.Begin(ctx, id)
	if err != nil {
		return err
	}
	return txn.Commit(Delta{Detections: map[string]recipeagent.DetectionResult{fingerprint: result}})
}

func (m *MemoryStore) Begin(ctx context.Context, id string) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e := m.lookup(id)
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	e.pending++
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		e.pending--
		m.mu.Unlock()
		close(done)
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Hand our place in the queue on once the writer ahead of us
			// finishes so later transactions are not stranded.
			go func() {
				<-prev
				release()
			}()
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	snap := e.session.Clone()
	m.mu.Unlock()

	return &Txn{
		snapshot: snap,
		commit:   func(d Delta) { m.apply(e, d) },
		release:  release,
	}, nil
}

func (m *MemoryStore) apply(e *entry, d Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &e.session
	now := m.now()
	for _, t := range d.Turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		s.Turns = append(s.Turns, t)
	}
	if over := len(s.Turns) - m.maxTurns; over > 0 {
		s.Turns = append([]recipeagent.Turn(nil), s.Turns[over:]...)
	}
	s.Preferences = s.Preferences.Merge(d.Preferences)
	s.ProcessedImages = mergeDetections(s.ProcessedImages, d.Detections)
	s.UpdatedAt = now
}

// Sweep drops sessions that have not been written for longer than idle and
// have no transaction queued. It returns the number removed.
func (m *MemoryStore) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	var removed []string
	for id, e := range m.sessions {
		if e.pending == 0 && e.session.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		slog.Info("SESSION_STORE: Swept idle sessions", "count", len(removed), "ids", strings.Join(removed, ","))
	}
	return len(removed)
}

// RunSweeper calls Sweep every interval until ctx ends.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(idle)
		}
	}
}

// queued reports how many transactions are active or waiting on id.
func (m *MemoryStore) queued(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		return e.pending
	}
	return 0
}
