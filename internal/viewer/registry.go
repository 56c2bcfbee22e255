package viewer

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/pdfdoc"
)

// ErrSessionNotFound is returned for unknown or evicted session IDs.
var ErrSessionNotFound = errors.New("viewer session not found")

// DefaultMaxSessions bounds how many documents stay parsed at once.
const DefaultMaxSessions = 32

// Registry keeps open viewer sessions, least recently used first out. Sessions
// idle for longer than the idle timeout are dropped by Sweep.
type Registry struct {
	capacity int
	idle     time.Duration
	sessions map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex

	now     func() time.Time
	newID   func() string
	logger  *zap.Logger
	options []SessionOption
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCapacity sets the maximum number of open sessions.
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithRegistryLogger sets the logger used for evictions and passed to sessions.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegistryClock sets the time source used to track idleness.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithSessionOptions sets options applied to every opened session.
func WithSessionOptions(opts ...SessionOption) RegistryOption {
	return func(r *Registry) { r.options = append(r.options, opts...) }
}

// NewRegistry returns an empty registry. A zero idle timeout disables Sweep.
func NewRegistry(idle time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		capacity: DefaultMaxSessions,
		idle:     idle,
		sessions: make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open parses data as a PDF and registers a new session for it.
func (r *Registry) Open(sourceID string, data []byte, opts ...SessionOption) (*Session, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	all := append([]SessionOption{WithSessionLogger(r.logger)}, r.options...)
	s := NewSession(r.newID(), sourceID, doc, append(all, opts...)...)
	s.touch(r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = r.lru.PushFront(s)
	for r.lru.Len() > r.capacity {
		oldest := r.lru.Back()
		r.removeLocked(oldest)
		r.logger.Debug("evicted viewer session", zap.String("session", oldest.Value.(*Session).ID))
	}
	return s, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	r.lru.MoveToFront(elem)
	s := elem.Value.(*Session)
	s.touch(r.now())
	return s, nil
}

// Close discards the session and its document.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	r.removeLocked(elem)
	return nil
}

// CloseSource discards every session viewing sourceID and returns how many were closed.
func (r *Registry) CloseSource(sourceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for elem := r.lru.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*Session).SourceID == sourceID {
			r.removeLocked(elem)
			n++
		}
		elem = next
	}
	return n
}

// Sweep closes sessions idle since before now minus the idle timeout and returns
// how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	// Least recently used sessions are at the back.
	for elem := r.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*Session).idleSince().Before(cutoff) {
			r.removeLocked(elem)
			n++
		}
		elem = prev
	}
	if n > 0 {
		r.logger.Debug("swept idle viewer sessions", zap.Int("closed", n))
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done, then closes every session.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	defer r.CloseAll()
	if interval <= 0 || r.idle <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// CloseAll discards every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for elem := r.lru.Front(); elem != nil; {
		next := elem.Next()
		r.removeLocked(elem)
		elem = next
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

func (r *Registry) removeLocked(elem *list.Element) {
	s := elem.Value.(*Session)
	r.lru.Remove(elem)
	delete(r.sessions, s.ID)
	s.Close()
}
