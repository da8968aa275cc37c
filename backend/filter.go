// backend/filter.go
package backend

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// ReferenceTerm matches entities whose Property references ID.
type ReferenceTerm struct {
	Property string
	ID       model.EntityID
}

// Filter is an entity search: a type plus reference constraints, all of which
// must hold.
type Filter struct {
	EntityType string
	References []ReferenceTerm
	Props      []string
	Limit      int
}

// TypeFilter starts a filter for entities of entityType.
func TypeFilter(entityType string) Filter {
	return Filter{EntityType: entityType}
}

func (f Filter) WithReference(property string, id model.EntityID) Filter {
	refs := make([]ReferenceTerm, 0, len(f.References)+1)
	refs = append(refs, f.References...)
	f.References = append(refs, ReferenceTerm{Property: property, ID: id})
	return f
}

func (f Filter) WithProps(props ...string) Filter {
	f.Props = append(append([]string(nil), f.Props...), props...)
	return f
}

func (f Filter) WithLimit(limit int) Filter {
	f.Limit = limit
	return f
}

// Query renders the filter in the backend's query-string dialect.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if f.EntityType != "" {
		q.Set(model.PropertyType+".string", f.EntityType)
	}
	for _, ref := range f.References {
		q.Add(ref.Property+".reference", string(ref.ID))
	}
	if len(f.Props) > 0 {
		q.Set("props", strings.Join(f.Props, ","))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Matches evaluates the filter locally against an entity.
func (f Filter) Matches(e *model.Entity) bool {
	if f.EntityType != "" && e.Type() != f.EntityType {
		return false
	}
	for _, ref := range f.References {
		if !e.HasReference(ref.Property, ref.ID) {
			return false
		}
	}
	return true
}
