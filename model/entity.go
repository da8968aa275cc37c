// model/entity.go
package model

import (
	"encoding/json"
	"fmt"
)

// EntityID is the opaque identifier of a backend record (class, task, person).
type EntityID string

// Well-known system properties of a backend entity.
const (
	PropertyID       = "_id"
	PropertyType     = "_type"
	PropertyParent   = "_parent"
	PropertyExpander = "_expander"
)

// Property is one typed value of an entity property. Only one of the value
// fields is set, depending on the property definition.
type Property struct {
	ID        string   `json:"_id,omitempty"`
	Type      string   `json:"type,omitempty"`
	String    string   `json:"string,omitempty"`
	Reference EntityID `json:"reference,omitempty"`
	Number    *float64 `json:"number,omitempty"`
	Boolean   *bool    `json:"boolean,omitempty"`
	Datetime  string   `json:"datetime,omitempty"`
	Language  string   `json:"language,omitempty"`
}

// Entity is a backend record: an id and a bag of multi-valued properties.
type Entity struct {
	ID         EntityID
	Properties map[string][]Property
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	e.Properties = make(map[string][]Property, len(raw))
	for name, value := range raw {
		if name == PropertyID {
			var id string
			if err := json.Unmarshal(value, &id); err != nil {
				return fmt.Errorf("failed to unmarshal entity id: %w", err)
			}
			e.ID = EntityID(id)
			continue
		}
		var values []Property
		if err := json.Unmarshal(value, &values); err != nil {
			// Not a property list (computed scalar fields such as _thumbnail).
			continue
		}
		e.Properties[name] = values
	}
	return nil
}

func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Properties)+1)
	for name, values := range e.Properties {
		out[name] = values
	}
	out[PropertyID] = e.ID
	return json.Marshal(out)
}

// References returns the referenced ids of a property, skipping empty values.
func (e *Entity) References(name string) []EntityID {
	var refs []EntityID
	for _, p := range e.Properties[name] {
		if p.Reference != "" {
			refs = append(refs, p.Reference)
		}
	}
	return refs
}

// HasReference reports whether property name references id.
func (e *Entity) HasReference(name string, id EntityID) bool {
	for _, p := range e.Properties[name] {
		if p.Reference == id {
			return true
		}
	}
	return false
}

// Strings returns the string values of a property.
func (e *Entity) Strings(name string) []string {
	var values []string
	for _, p := range e.Properties[name] {
		if p.String != "" {
			values = append(values, p.String)
		}
	}
	return values
}

// Type returns the entity type name, or "" when the entity carries none.
func (e *Entity) Type() string {
	if types := e.Strings(PropertyType); len(types) > 0 {
		return types[0]
	}
	return ""
}
