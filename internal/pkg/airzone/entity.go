package airzone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

// Entity is one node of the synchronized tree.
type Entity interface {
	ID() string
	Kind() Kind
	Name() string
	Path() string
	Children() []Entity
	// UpdateFrom re-applies a freshly fetched payload to the published fields.
	UpdateFrom(ctx context.Context, payload gjson.Result) error
}

var _ Entity = (*entity)(nil)

type bounds struct {
	min, max float64
	ok       bool
}

func (b bounds) clamp(v float64) float64 {
	if !b.ok {
		return v
	}
	return min(max(v, b.min), b.max)
}

// entity is driven entirely by its schema. Everything but children is
// fixed at build time.
type entity struct {
	session *Session
	schema  *schema
	parent  *entity

	id     string
	name   string
	path   string
	unit   string
	addr   address
	bounds bounds
	fields []*field

	mu       sync.RWMutex
	children []*entity
}

func newEntity(s *Session, sc *schema, parent *entity, segment string, payload gjson.Result) (*entity, error) {
	id := sc.identity(payload)
	if id == "" {
		return nil, fmt.Errorf("%s payload without identity", sc.kind)
	}
	e := &entity{
		session: s,
		schema:  sc,
		parent:  parent,
		id:      id,
		name:    payload.Get(sc.nameKey).String(),
		unit:    model.DefaultTemperatureUnit,
		addr:    address{},
	}
	parentPath := ""
	if parent != nil {
		parentPath = parent.path
	}
	if segment == "" {
		segment = sc.segment(id, e.name)
	}
	e.path = state.Join(parentPath, segment)

	if sc.unitKey != "" {
		if u, ok := model.TemperatureUnits.Lookup(payload.Get(sc.unitKey).String()); ok {
			e.unit = u.Description
		}
	}
	if sc.minKey != "" && sc.maxKey != "" {
		lo, loErr := number(payload.Get(sc.minKey))
		hi, hiErr := number(payload.Get(sc.maxKey))
		if loErr == nil && hiErr == nil && lo <= hi {
			e.bounds = bounds{min: lo, max: hi, ok: true}
		}
	}
	if sc.capture != nil {
		e.addr = sc.capture(parent, payload)
	}
	for i := range sc.fields {
		f := &sc.fields[i]
		if f.optional && !payload.Get(f.key).Exists() {
			continue
		}
		e.fields = append(e.fields, f)
	}
	return e, nil
}

func (e *entity) ID() string   { return e.id }
func (e *entity) Kind() Kind   { return e.schema.kind }
func (e *entity) Name() string { return e.name }
func (e *entity) Path() string { return e.path }

func (e *entity) Children() []Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Entity, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, c)
	}
	return out
}

func (e *entity) childEntities() []*entity {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]*entity(nil), e.children...)
}

func (e *entity) setChildren(children []*entity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.children = children
}

// declare creates every property of the entity and binds its writable ones.
func (e *entity) declare(ctx context.Context) error {
	for _, f := range e.fields {
		for _, p := range e.properties(f) {
			if err := e.session.sink.Declare(ctx, p); err != nil {
				return err
			}
		}
		if !f.writable() {
			continue
		}
		if err := e.session.bind(state.Join(e.path, f.writePath()), e, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *entity) properties(f *field) []state.Property {
	if f.table != nil {
		return []state.Property{
			{Path: state.Join(e.path, f.name+"_raw"), Name: f.name + "_raw", Type: f.typ, Role: f.role, Read: true, Write: f.writable()},
			{Path: state.Join(e.path, f.name), Name: f.name, Type: state.TypeString, Role: "text", Read: true},
			{Path: state.Join(e.path, f.name+"_description"), Name: f.name + "_description", Type: state.TypeString, Role: "text", Read: true},
		}
	}
	p := state.Property{
		Path:  state.Join(e.path, f.name),
		Name:  f.name,
		Type:  f.typ,
		Role:  f.role,
		Unit:  f.unit,
		Read:  true,
		Write: f.writable(),
	}
	if f.unit == unitTemperature {
		p.Unit = e.unit
	}
	if f.bounded && e.bounds.ok {
		lo, hi := e.bounds.min, e.bounds.max
		p.Min, p.Max = &lo, &hi
	}
	return []state.Property{p}
}

func (e *entity) UpdateFrom(ctx context.Context, payload gjson.Result) error {
	var errs []error
	for _, f := range e.fields {
		if err := e.apply(ctx, f, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *entity) write(ctx context.Context, name string, value any) error {
	return e.session.sink.Write(ctx, state.Join(e.path, name), value)
}

// apply publishes one field. Mapping problems degrade the field and are
// only logged, sink errors are returned.
func (e *entity) apply(ctx context.Context, f *field, payload gjson.Result) error {
	if f.table != nil {
		return e.applyCode(ctx, f, payload)
	}
	if f.compute != nil {
		v, err := f.compute(payload)
		if err != nil {
			e.mappingFailed(f, payload.Get(f.key).String(), err)
			v = nil
		}
		return e.write(ctx, f.name, v)
	}

	r := payload.Get(f.key)
	if !r.Exists() || r.Type == gjson.Null {
		if f.presentOnly || f.nonEmpty {
			return nil
		}
		return e.write(ctx, f.name, nil)
	}
	if f.nonEmpty && r.String() == "" {
		return nil
	}
	v, err := convert(f.typ, r)
	if err != nil {
		e.mappingFailed(f, r.String(), err)
		v = nil
	}
	return e.write(ctx, f.name, v)
}

func (e *entity) applyCode(ctx context.Context, f *field, payload gjson.Result) error {
	raw := payload.Get(f.key)
	if f.presentOnly && !raw.Exists() {
		return nil
	}

	var rawValue, name, description any
	if raw.Exists() && raw.Type != gjson.Null {
		v, err := convert(f.typ, raw)
		if err != nil {
			e.mappingFailed(f, raw.String(), err)
		} else {
			rawValue = v
		}
	}
	switch {
	case f.gate != "" && !payload.Get(f.gate).Bool():
		// capability absent, the raw code is kept but not looked up.
	case !raw.Exists() || raw.Type == gjson.Null:
	default:
		code, ok := f.table.Lookup(codeKey(raw))
		switch {
		case ok:
			name, description = code.Name, code.Description
		case f.placeholder:
			e.mappingFailed(f, raw.String(), errUnknownCode)
			name, description = model.Unknown, model.Unknown
		default:
			e.mappingFailed(f, raw.String(), errUnknownCode)
		}
	}

	return errors.Join(
		e.write(ctx, f.name+"_raw", rawValue),
		e.write(ctx, f.name, name),
		e.write(ctx, f.name+"_description", description),
	)
}

func (e *entity) mappingFailed(f *field, raw string, err error) {
	merr := &MappingError{Path: e.path, Field: f.name, Raw: raw, Err: err}
	e.session.logger.Debug("field mapping failed", zap.Error(merr))
	e.session.metrics.mappingErrors.WithLabelValues(f.name).Inc()
}
