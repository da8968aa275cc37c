// model/grant.go
package model

// PermissionKind is the access right a grant confers.
type PermissionKind string

// PermissionExpander lets its holder create child records under the resource.
const PermissionExpander PermissionKind = "expander"

// PropertyName returns the backend property that stores holders of the kind.
func (k PermissionKind) PropertyName() string {
	return "_" + string(k)
}

type PermissionGrant struct {
	Grantee  EntityID       `json:"grantee"`
	Resource EntityID       `json:"resource"`
	Kind     PermissionKind `json:"kind"`
}

// GrantMode selects how a batch is sent to the backend.
type GrantMode int

const (
	// GrantIndividually issues one grant call per (resource, grantee).
	GrantIndividually GrantMode = iota
	// GrantInBulk issues one bulk call per resource for all its grantees.
	GrantInBulk
)

func (m GrantMode) String() string {
	if m == GrantInBulk {
		return "bulk"
	}
	return "individual"
}

// GrantBatch is the ordered set of grants one resolver invocation produced.
type GrantBatch struct {
	Trigger TriggerKind       `json:"trigger"`
	Source  EntityID          `json:"source"`
	Mode    GrantMode         `json:"mode"`
	Grants  []PermissionGrant `json:"grants"`
}

// ByResource groups grantees per resource, keeping first-seen order.
func (b *GrantBatch) ByResource() ([]EntityID, map[EntityID][]EntityID) {
	var order []EntityID
	grouped := make(map[EntityID][]EntityID)
	for _, g := range b.Grants {
		if _, ok := grouped[g.Resource]; !ok {
			order = append(order, g.Resource)
		}
		grouped[g.Resource] = append(grouped[g.Resource], g.Grantee)
	}
	return order, grouped
}

// GrantOutcome is the result of a single idempotent grant.
type GrantOutcome int

const (
	Granted GrantOutcome = iota
	AlreadyGranted
)

func (o GrantOutcome) String() string {
	if o == AlreadyGranted {
		return "already_granted"
	}
	return "granted"
}

// BulkGrantResult tallies one bulk call. Skipped covers grantees that already
// held the permission and duplicates within the request.
type BulkGrantResult struct {
	Granted int `json:"granted"`
	Skipped int `json:"skipped"`
}
