package publisher

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

var errAlreadyRegistered = errors.New("publisher already registered")

// eventBuffer is sized for a full tree write per poll.
const eventBuffer = 1024

type publisher interface {
	// Write publishes changed values to the registered adapter
	Write(ctx context.Context, data []model.Property) error
	RegisterProperty(ctx context.Context, p state.Property) error
}

// source is the store the registry mirrors.
type source interface {
	Events() state.EventSubscriber
	List() []state.Entry
}

// Registry fans store events out to the registered publishers, skipping
// values that did not change since the last publish. The bus may drop
// events, so any write for a path not yet registered registers it first.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	sensors    sync.Map
	registered sync.Map
	events     chan state.Event
	logger     *zap.Logger
}

func New() *Registry {
	return &Registry{
		publishers: make(map[string]publisher),
		logger:     zap.L(),
	}
}

func (r *Registry) RegisterPublisher(name string, p publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.publishers[name]; ok {
		return errAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

// Subscribe starts buffering store events. Call it before anything writes
// to the store so Run sees the whole history.
func (r *Registry) Subscribe(src source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.events != nil {
		return
	}
	r.events = make(chan state.Event, eventBuffer)
	src.Events().Subscribe(r.events)
}

// Run replays the current contents of src, then consumes its events
// until ctx is done.
func (r *Registry) Run(ctx context.Context, src source) error {
	r.Subscribe(src)
	r.mu.RLock()
	ch := r.events
	r.mu.RUnlock()
	defer func() {
		src.Events().Unsubscribe(ch)
		r.mu.Lock()
		r.events = nil
		r.mu.Unlock()
	}()

	r.replay(ctx, src.List())
	for {
		select {
		case e := <-ch:
			r.Handle(ctx, e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Registry) replay(ctx context.Context, entries []state.Entry) {
	for _, entry := range entries {
		r.Handle(ctx, state.Event{Kind: state.EventDeclared, Property: entry.Property, Time: entry.UpdatedAt})
		if entry.Ack {
			r.Handle(ctx, state.Event{Kind: state.EventWritten, Property: entry.Property, Value: entry.Value, Time: entry.UpdatedAt})
		}
	}
}

func (r *Registry) Handle(ctx context.Context, e state.Event) {
	switch e.Kind {
	case state.EventDeclared:
		r.register(ctx, e.Property)
	case state.EventWritten:
		r.register(ctx, e.Property)
		val := FormatValue(e.Value)
		if !r.shouldUpdate(e.Property.Path, val) {
			return
		}
		ts := e.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		data := []model.Property{{
			TimeStamp: ts,
			Unit:      e.Property.Unit,
			Value:     val,
			Path:      e.Property.Path,
		}}
		r.each(func(name string, p publisher) {
			if err := p.Write(ctx, data); err != nil {
				r.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
				return
			}
			r.logger.Debug("updated sensor", zap.String("path", e.Property.Path), zap.String("publisher", name))
		})
	}
}

// register announces p once. A publisher failure leaves p unregistered so
// the next write retries it.
func (r *Registry) register(ctx context.Context, p state.Property) {
	if _, done := r.registered.LoadOrStore(p.Path, struct{}{}); done {
		return
	}
	failed := false
	r.each(func(name string, pub publisher) {
		if err := pub.RegisterProperty(ctx, p); err != nil {
			failed = true
			r.logger.Error("failed to register property", zap.Error(err), zap.String("publisher", name), zap.String("path", p.Path))
		}
	})
	if failed {
		r.registered.Delete(p.Path)
	}
}

func (r *Registry) each(fn func(name string, p publisher)) {
	r.mu.RLock()
	names := lo.Keys(r.publishers)
	sort.Strings(names)
	pubs := lo.Map(names, func(n string, _ int) publisher { return r.publishers[n] })
	r.mu.RUnlock()

	for i, name := range names {
		fn(name, pubs[i])
	}
}

func (r *Registry) shouldUpdate(path, newValue string) bool {
	oldValue, exists := r.sensors.Load(path)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		r.logger.Info("configured sensor", zap.String("path", path), zap.String("value", newValue))
	}
	r.sensors.Store(path, newValue)
	return true
}

// FormatValue renders a state value as published text. Unset is empty.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
