// resolver/student_added.go
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mitselek/esmuseum-map-app-sub006/backend"
	"github.com/mitselek/esmuseum-map-app-sub006/config"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// StudentAddedResolver handles a person whose parent groups changed: the
// person becomes expander on every task assigned to one of those groups.
type StudentAddedResolver struct {
	reader EntityReader
	cfg    config.EntityConfiguration
}

var _ Resolver = &StudentAddedResolver{}

func NewStudentAddedResolver(reader EntityReader, cfg config.EntityConfiguration) *StudentAddedResolver {
	return &StudentAddedResolver{reader: reader, cfg: cfg}
}

func (r *StudentAddedResolver) Kind() model.TriggerKind {
	return model.StudentAddedToClass
}

// Resolve returns one grant per task. The backend can only bulk-grant many
// grantees on one resource, so the batch is sent one grant at a time.
func (r *StudentAddedResolver) Resolve(ctx context.Context, cred *model.Credential, personID model.EntityID) (*model.GrantBatch, error) {
	batch := emptyBatch(r.Kind(), personID, model.GrantIndividually)

	person, err := r.reader.FetchEntity(ctx, cred, personID)
	if errors.Is(err, sync_errors.ErrEntityNotFound) {
		logger.Warn("Person vanished before processing", zap.String("entityID", string(personID)))
		return batch, nil
	}
	if err != nil {
		return nil, err
	}

	groups := person.References(model.PropertyParent)
	var tasks []model.Entity
	for _, group := range groups {
		filter := backend.TypeFilter(r.cfg.TaskType).
			WithReference(r.cfg.GroupProperty, group).
			WithProps(model.PropertyID, model.PropertyType, r.cfg.GroupProperty).
			WithLimit(r.cfg.SearchLimit)
		found, err := r.reader.SearchEntities(ctx, cred, filter)
		if err != nil {
			return nil, fmt.Errorf("tasks of group %s: %w", group, err)
		}
		tasks = append(tasks, found...)
	}

	batch.Grants = StudentGrants(person, tasks, r.cfg.GroupProperty)
	logger.Debug("Resolved student grants",
		zap.String("entityID", string(personID)),
		zap.Int("groups", len(groups)),
		zap.Int("grants", len(batch.Grants)))
	return batch, nil
}

// StudentGrants returns (person, task) expander grants for every task that is
// assigned through groupProperty to one of the person's parent groups. Tasks
// are deduplicated and keep their first-seen order.
func StudentGrants(person *model.Entity, tasks []model.Entity, groupProperty string) []model.PermissionGrant {
	groups := person.References(model.PropertyParent)
	seen := make(map[model.EntityID]struct{}, len(tasks))
	var grants []model.PermissionGrant
	for i := range tasks {
		task := &tasks[i]
		if task.ID == "" || task.ID == person.ID {
			continue
		}
		if _, dup := seen[task.ID]; dup {
			continue
		}
		if !referencesAny(task, groupProperty, groups) {
			continue
		}
		seen[task.ID] = struct{}{}
		grants = append(grants, model.PermissionGrant{Grantee: person.ID, Resource: task.ID, Kind: model.PermissionExpander})
	}
	return grants
}
