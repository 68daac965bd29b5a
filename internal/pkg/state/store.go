package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var _ Sink = (*Store)(nil)

// Store is an in-memory Sink. Writes are published on its event bus so
// MQTT, postgres and websocket consumers can follow the tree.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	handlers map[string]Handler
	bus      *EventBus
	logger   *zap.Logger
	clock    func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*Entry),
		handlers: make(map[string]Handler),
		bus:      NewEventBus(),
		logger:   zap.L(),
		clock:    time.Now,
	}
}

func (s *Store) Events() EventSubscriber {
	return s.bus
}

func (s *Store) Declare(_ context.Context, p Property) error {
	if p.Path == "" {
		return fmt.Errorf("declare: empty path")
	}
	s.mu.Lock()
	if _, exists := s.entries[p.Path]; exists {
		s.mu.Unlock()
		return nil
	}
	s.entries[p.Path] = &Entry{Property: p}
	s.mu.Unlock()

	s.logger.Debug("declared property", zap.String("path", p.Path), zap.String("type", p.Type.String()))
	s.bus.Publish(Event{Kind: EventDeclared, Property: p, Time: s.clock()})
	return nil
}

func (s *Store) Write(_ context.Context, path string, value any) error {
	s.mu.Lock()
	entry, exists := s.entries[path]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProperty, path)
	}
	v, err := Coerce(entry.Type, value)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write %s: %w", path, err)
	}
	entry.Value = v
	entry.Ack = true
	entry.UpdatedAt = s.clock()
	event := Event{Kind: EventWritten, Property: entry.Property, Value: v, Time: entry.UpdatedAt}
	s.mu.Unlock()

	s.bus.Publish(event)
	return nil
}

func (s *Store) Subscribe(path string, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[path]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, path)
	}
	if !entry.Write {
		return fmt.Errorf("subscribe %s: %w", path, ErrReadOnly)
	}
	s.handlers[path] = h
	return nil
}

// Set records an external write and hands it to the subscribed handler.
// The handler runs once per call, synchronously, outside the store lock.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	s.mu.Lock()
	entry, exists := s.entries[path]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProperty, path)
	}
	if !entry.Write {
		s.mu.Unlock()
		return fmt.Errorf("set %s: %w", path, ErrReadOnly)
	}
	v, err := Coerce(entry.Type, value)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set %s: %w", path, err)
	}
	entry.Value = v
	entry.Ack = false
	entry.UpdatedAt = s.clock()
	event := Event{Kind: EventRequested, Property: entry.Property, Value: v, Time: entry.UpdatedAt}
	handler := s.handlers[path]
	s.mu.Unlock()

	s.bus.Publish(event)
	if handler == nil {
		s.logger.Warn("no handler subscribed", zap.String("path", path))
		return nil
	}
	handler(ctx, path, v)
	return nil
}

func (s *Store) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[path]
	if !exists {
		return Entry{}, false
	}
	return *entry, true
}

// Value returns the current value of path, nil when unknown or unset.
func (s *Store) Value(path string) any {
	entry, _ := s.Get(path)
	return entry.Value
}

func (s *Store) List() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}
