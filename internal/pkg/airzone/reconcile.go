package airzone

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// build constructs one level of the tree and recurses into it. A child
// whose own children cannot be fetched is dropped.
func (s *Session) build(ctx context.Context, parent *entity, nodes []node) ([]*entity, []error) {
	var errs []error
	built := make([]*entity, 0, len(nodes))
	used := map[string]bool{}

	for _, n := range nodes {
		sc := s.api.schema(n.kind)
		if sc == nil {
			s.logger.Debug("no schema for kind", zap.String("kind", string(n.kind)))
			continue
		}
		id := sc.identity(n.payload)
		segment := sc.segment(id, n.payload.Get(sc.nameKey).String())
		if used[segment] {
			segment = fmt.Sprintf("%s_%s", segment, id)
		}

		e, childErrs, err := s.buildEntity(ctx, parent, sc, segment, n)
		errs = append(errs, childErrs...)
		if err != nil {
			s.logger.Warn("dropping entity", zap.String("kind", string(n.kind)), zap.String("id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		used[segment] = true
		built = append(built, e)
	}
	return built, errs
}

func (s *Session) buildEntity(ctx context.Context, parent *entity, sc *schema, segment string, n node) (*entity, []error, error) {
	e, err := newEntity(s, sc, parent, segment, n.payload)
	if err != nil {
		return nil, nil, err
	}
	if err := e.declare(ctx); err != nil {
		s.unbind(e)
		return nil, nil, fmt.Errorf("declare %s: %w", e.path, err)
	}
	if err := e.UpdateFrom(ctx, n.payload); err != nil {
		s.logger.Warn("initial update failed", zap.String("path", e.path), zap.Error(err))
	}

	childNodes, err := s.api.children(ctx, s.currentToken(), e, n.payload)
	if err != nil {
		s.unbind(e)
		return nil, nil, &FetchError{Path: e.path, Err: err}
	}
	children, errs := s.build(ctx, e, childNodes)
	e.setChildren(children)
	return e, errs, nil
}

// reconcile matches fetched payloads to existing entities by kind and id.
// Payloads without a match are ignored and entities without a payload are
// kept as they are.
func (s *Session) reconcile(ctx context.Context, existing []*entity, nodes []node) []error {
	var errs []error
	for _, n := range nodes {
		sc := s.api.schema(n.kind)
		if sc == nil {
			continue
		}
		id := sc.identity(n.payload)
		match, ok := lo.Find(existing, func(e *entity) bool {
			return e.Kind() == n.kind && e.id == id
		})
		if !ok {
			s.logger.Debug("ignoring entity not present at build", zap.String("kind", string(n.kind)), zap.String("id", id))
			continue
		}

		if err := match.UpdateFrom(ctx, n.payload); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", match.path, err))
		}

		childNodes, err := s.api.children(ctx, s.currentToken(), match, n.payload)
		if err != nil {
			ferr := &FetchError{Path: match.path, Err: err}
			s.logger.Warn("skipping subtree", zap.Error(ferr))
			errs = append(errs, ferr)
			continue
		}
		errs = append(errs, s.reconcile(ctx, match.childEntities(), childNodes)...)
	}
	return errs
}
