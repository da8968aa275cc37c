// resolver/resolver.go
package resolver

import (
	"context"
	"fmt"

	"github.com/mitselek/esmuseum-map-app-sub006/backend"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// EntityReader is the read side of the backend a resolver needs.
type EntityReader interface {
	FetchEntity(ctx context.Context, cred *model.Credential, id model.EntityID) (*model.Entity, error)
	SearchEntities(ctx context.Context, cred *model.Credential, filter backend.Filter) ([]model.Entity, error)
}

// Resolver computes the grants one trigger implies for a changed entity.
type Resolver interface {
	Kind() model.TriggerKind
	Resolve(ctx context.Context, cred *model.Credential, source model.EntityID) (*model.GrantBatch, error)
}

// Registry looks resolvers up by trigger kind.
type Registry struct {
	resolvers map[model.TriggerKind]Resolver
}

func NewRegistry(resolvers ...Resolver) *Registry {
	r := &Registry{resolvers: make(map[model.TriggerKind]Resolver, len(resolvers))}
	for _, res := range resolvers {
		r.resolvers[res.Kind()] = res
	}
	return r
}

func (r *Registry) Get(kind model.TriggerKind) (Resolver, error) {
	res, ok := r.resolvers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sync_errors.ErrUnknownTrigger, kind)
	}
	return res, nil
}

func emptyBatch(kind model.TriggerKind, source model.EntityID, mode model.GrantMode) *model.GrantBatch {
	return &model.GrantBatch{Trigger: kind, Source: source, Mode: mode}
}

// referencesAny reports whether e's property references one of ids.
func referencesAny(e *model.Entity, property string, ids []model.EntityID) bool {
	for _, id := range ids {
		if e.HasReference(property, id) {
			return true
		}
	}
	return false
}
