package airzone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
	"github.com/anicoll/airzone-integration/internal/pkg/transport"
)

// node is a fetched child payload before it is matched or built.
type node struct {
	kind    Kind
	payload gjson.Result
}

// api is the variant specific half of a session.
type api interface {
	login(ctx context.Context) (string, error)
	roots(ctx context.Context, token string) ([]node, error)
	children(ctx context.Context, token string, parent *entity, payload gjson.Result) ([]node, error)
	send(ctx context.Context, token string, e *entity, option string, value any) error
	schema(kind Kind) *schema
	stopCode() string
	powerOption() string
}

type binding struct {
	entity *entity
	field  *field
}

// Session owns the authentication state, the entity tree and the table
// routing sink writes back to entities.
type Session struct {
	api     api
	sink    state.Sink
	logger  *zap.Logger
	metrics *metrics
	errChan chan error
	login   singleflight.Group
	clock   func() time.Time

	mu       sync.RWMutex
	token    string
	roots    []*entity
	bindings map[string]binding
	built    bool
}

func New(cfg *config.AirzoneConfig, tr transport.Transport, sink state.Sink) (*Session, error) {
	s := &Session{
		sink:     sink,
		logger:   zap.L(),
		metrics:  newMetrics(),
		errChan:  make(chan error, 100),
		clock:    time.Now,
		bindings: make(map[string]binding),
	}
	switch cfg.Mode {
	case config.ModeCloud:
		s.api = newCloudAPI(cfg, tr)
	case config.ModeLocal:
		s.api = newLocalAPI(cfg, tr, s.logger)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", config.ErrInvalidConfig, cfg.Mode)
	}
	return s, nil
}

// Errors carries command failures. Nothing else is sent on it.
func (s *Session) Errors() <-chan error {
	return s.errChan
}

func (s *Session) Collectors() []prometheus.Collector {
	return s.metrics.collectors()
}

// Ready reports whether Init has built the tree.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.built
}

func (s *Session) Roots() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.roots))
	for _, r := range s.roots {
		out = append(out, r)
	}
	return out
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Authenticate logs in again. Concurrent callers share a single request.
func (s *Session) Authenticate(ctx context.Context) error {
	_, err, shared := s.login.Do("login", func() (any, error) {
		token, err := s.api.login(ctx)
		s.mu.Lock()
		if err != nil {
			s.token = ""
		} else {
			s.token = token
		}
		s.mu.Unlock()
		s.metrics.logins.WithLabelValues(result(err)).Inc()
		return token, err
	})
	if shared {
		s.logger.Debug("joined in-flight login")
	}
	return err
}

// Init authenticates and builds the whole tree. On failure the tree stays
// empty and Init may be called again.
func (s *Session) Init(ctx context.Context) (err error) {
	defer func() { s.recordPass(err) }()

	if s.Ready() {
		return nil
	}
	if err := s.Authenticate(ctx); err != nil {
		return err
	}
	nodes, err := s.api.roots(ctx, s.currentToken())
	if err != nil {
		return &FetchError{Err: err}
	}

	roots, errs := s.build(ctx, nil, nodes)

	s.mu.Lock()
	s.roots = roots
	s.built = true
	s.mu.Unlock()

	s.countEntities()
	s.logger.Info("entity tree built", zap.Int("roots", len(roots)), zap.Int("bindings", s.bindingCount()))
	return errors.Join(errs...)
}

// Update re-fetches every level and re-applies it onto the entities built by
// Init. Entities are never added or removed here.
func (s *Session) Update(ctx context.Context) (err error) {
	defer func() { s.recordPass(err) }()

	if !s.Ready() {
		return ErrNotReady
	}
	if err := s.Authenticate(ctx); err != nil {
		return err
	}
	nodes, err := s.api.roots(ctx, s.currentToken())
	if err != nil {
		return &FetchError{Err: err}
	}

	s.mu.RLock()
	roots := append([]*entity(nil), s.roots...)
	s.mu.RUnlock()

	return errors.Join(s.reconcile(ctx, roots, nodes)...)
}

// SendCommand writes one option of e to the remote API. Failures are
// reported on Errors and never returned.
func (s *Session) SendCommand(ctx context.Context, e Entity, option string, value any) {
	cmdErr := &CommandError{ID: uuid.NewString(), Option: option, Value: value}
	if e != nil {
		cmdErr.Path = e.Path()
	}
	logger := s.logger.With(zap.String("command_id", cmdErr.ID), zap.String("path", cmdErr.Path),
		zap.String("option", option), zap.Any("value", value))

	ent, ok := e.(*entity)
	if !ok || ent == nil {
		cmdErr.Err = ErrUnknownBinding
		s.commandFailed(logger, cmdErr)
		return
	}
	if err := s.Authenticate(ctx); err != nil {
		cmdErr.Err = err
		s.commandFailed(logger, cmdErr)
		return
	}
	if err := s.api.send(ctx, s.currentToken(), ent, option, value); err != nil {
		cmdErr.Err = err
		s.commandFailed(logger, cmdErr)
		return
	}
	s.metrics.commands.WithLabelValues(option, result(nil)).Inc()
	logger.Info("command sent")
}

func (s *Session) commandFailed(logger *zap.Logger, err *CommandError) {
	s.metrics.commands.WithLabelValues(err.Option, result(err)).Inc()
	logger.Error("command failed", zap.Error(err))
	select {
	case s.errChan <- err:
	default:
		logger.Warn("error channel full, dropping command error")
	}
}

// handle is the sink callback for every bound path.
func (s *Session) handle(ctx context.Context, path string, value any) {
	s.mu.RLock()
	b, ok := s.bindings[path]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("write on unbound path", zap.String("path", path))
		return
	}
	b.field.react(ctx, b.entity, b.field, value)
}

func (s *Session) bind(path string, e *entity, f *field) error {
	s.mu.Lock()
	s.bindings[path] = binding{entity: e, field: f}
	s.mu.Unlock()

	return s.sink.Subscribe(path, s.handle)
}

func (s *Session) unbind(e *entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, b := range s.bindings {
		if b.entity == e {
			delete(s.bindings, path)
		}
	}
}

// Lookup returns the entity bound to a writable path.
func (s *Session) Lookup(path string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[path]
	if !ok {
		return nil, false
	}
	return b.entity, true
}

func (s *Session) bindingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bindings)
}

func (s *Session) recordPass(err error) {
	s.metrics.updates.WithLabelValues(result(err)).Inc()
	if err == nil {
		s.metrics.lastSuccess.Set(float64(s.clock().Unix()))
	}
}

func (s *Session) countEntities() {
	counts := map[Kind]int{}
	var walk func(es []*entity)
	walk = func(es []*entity) {
		for _, e := range es {
			counts[e.Kind()]++
			walk(e.childEntities())
		}
	}
	s.mu.RLock()
	walk(s.roots)
	s.mu.RUnlock()

	for _, k := range []Kind{KindDevice, KindSystem, KindZone, KindIAQ} {
		s.metrics.entities.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
}
