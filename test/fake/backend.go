// test/fake/backend.go

// Package fake provides an in-memory entity backend with the same semantics
// as backend.Client, for tests that must not touch the network.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitselek/esmuseum-map-app-sub006/backend"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// Operation names used for call counting and forced failures.
const (
	OpFetch     = "fetch"
	OpSearch    = "search"
	OpGrant     = "grant"
	OpBulkGrant = "bulk_grant"
)

// Backend is safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	entities map[model.EntityID]*model.Entity
	calls    map[string]int
	failures map[string]error
	now      func() time.Time

	// BeforeCall, when set, runs before every operation outside the lock.
	BeforeCall func(op string, id model.EntityID)
}

func NewBackend() *Backend {
	return &Backend{
		entities: make(map[model.EntityID]*model.Entity),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// Put stores an entity of entityType with the given references.
func (b *Backend) Put(id model.EntityID, entityType string, refs map[string][]model.EntityID) {
	e := &model.Entity{ID: id, Properties: map[string][]model.Property{
		model.PropertyType: {{String: entityType}},
	}}
	for prop, ids := range refs {
		for _, ref := range ids {
			e.Properties[prop] = append(e.Properties[prop], model.Property{Reference: ref})
		}
	}
	b.mu.Lock()
	b.entities[id] = e
	b.mu.Unlock()
}

// SetReferences replaces one property of a stored entity.
func (b *Backend) SetReferences(id model.EntityID, prop string, refs ...model.EntityID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	values := make([]model.Property, 0, len(refs))
	for _, ref := range refs {
		values = append(values, model.Property{Reference: ref})
	}
	b.entities[id].Properties[prop] = values
}

func (b *Backend) Delete(id model.EntityID) {
	b.mu.Lock()
	delete(b.entities, id)
	b.mu.Unlock()
}

// FailFor makes calls of op on entity id return err; nil clears it.
func (b *Backend) FailFor(op string, id model.EntityID, err error) {
	b.Fail(op+"/"+string(id), err)
}

// Fail makes every later call of op return err; nil clears it.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Calls returns how often op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Holders returns the sorted grantees holding kind on resource.
func (b *Backend) Holders(resource model.EntityID, kind model.PermissionKind) []model.EntityID {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[resource]
	if !ok {
		return nil
	}
	refs := e.References(kind.PropertyName())
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

func (b *Backend) enter(op string, cred *model.Credential, id model.EntityID) error {
	if b.BeforeCall != nil {
		b.BeforeCall(op, id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if cred == nil || cred.Expired(b.now()) {
		return fmt.Errorf("%w: credential expired", sync_errors.ErrCredentialRejected)
	}
	if err, ok := b.failures[op+"/"+string(id)]; ok {
		return err
	}
	return b.failures[op]
}

func (b *Backend) FetchEntity(_ context.Context, cred *model.Credential, id model.EntityID) (*model.Entity, error) {
	if err := b.enter(OpFetch, cred, id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[id]
	if !ok {
		return nil, fmt.Errorf("fetch entity %s: %w", id, sync_errors.ErrEntityNotFound)
	}
	return clone(e), nil
}

func (b *Backend) SearchEntities(_ context.Context, cred *model.Credential, filter backend.Filter) ([]model.Entity, error) {
	if err := b.enter(OpSearch, cred, ""); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]model.EntityID, 0, len(b.entities))
	for id := range b.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var found []model.Entity
	for _, id := range ids {
		if e := b.entities[id]; filter.Matches(e) {
			found = append(found, *clone(e))
		}
	}
	return found, nil
}

func (b *Backend) GrantPermission(_ context.Context, cred *model.Credential, resource, grantee model.EntityID, kind model.PermissionKind) (model.GrantOutcome, error) {
	if err := b.enter(OpGrant, cred, resource); err != nil {
		return model.Granted, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[resource]
	if !ok {
		return model.Granted, fmt.Errorf("grant on %s: %w", resource, sync_errors.ErrEntityNotFound)
	}
	if e.HasReference(kind.PropertyName(), grantee) {
		return model.AlreadyGranted, nil
	}
	e.Properties[kind.PropertyName()] = append(e.Properties[kind.PropertyName()], model.Property{Reference: grantee})
	return model.Granted, nil
}

func (b *Backend) BulkGrantPermissions(_ context.Context, cred *model.Credential, resource model.EntityID, grantees []model.EntityID, kind model.PermissionKind) (model.BulkGrantResult, error) {
	var result model.BulkGrantResult
	if err := b.enter(OpBulkGrant, cred, resource); err != nil {
		return result, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[resource]
	if !ok {
		return result, fmt.Errorf("bulk grant on %s: %w", resource, sync_errors.ErrEntityNotFound)
	}
	for _, grantee := range grantees {
		if e.HasReference(kind.PropertyName(), grantee) {
			result.Skipped++
			continue
		}
		e.Properties[kind.PropertyName()] = append(e.Properties[kind.PropertyName()], model.Property{Reference: grantee})
		result.Granted++
	}
	return result, nil
}

func clone(e *model.Entity) *model.Entity {
	c := &model.Entity{ID: e.ID, Properties: make(map[string][]model.Property, len(e.Properties))}
	for name, values := range e.Properties {
		c.Properties[name] = append([]model.Property(nil), values...)
	}
	return c
}
