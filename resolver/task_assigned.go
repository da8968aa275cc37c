// resolver/task_assigned.go
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

// TaskAssignedResolver handles a task whose group changed: every member of
// the group becomes expander on the task.
type TaskAssignedResolver struct {
	reader EntityReader
	cfg    config.EntityConfiguration
}

var _ Resolver = &TaskAssignedResolver{}

func NewTaskAssignedResolver(reader EntityReader, cfg config.EntityConfiguration) *TaskAssignedResolver {
	return &TaskAssignedResolver{reader: reader, cfg: cfg}
}

func (r *TaskAssignedResolver) Kind() model.TriggerKind {
	return model.TaskAssignedToClass
}

// Resolve returns one grant per student, all on the same task, sent as a
// single bulk call.
func (r *TaskAssignedResolver) Resolve(ctx context.Context, cred *model.Credential, taskID model.EntityID) (*model.GrantBatch, error) {
	batch := emptyBatch(r.Kind(), taskID, model.GrantInBulk)

	task, err := r.reader.FetchEntity(ctx, cred, taskID)
	if errors.Is(err, sync_errors.ErrEntityNotFound) {
		logger.Warn("Task vanished before processing", zap.String("entityID", string(taskID)))
		return batch, nil
	}
	if err != nil {
		return nil, err
	}

	groups := task.References(r.cfg.GroupProperty)
	var students []model.Entity
	for _, group := range groups {
		filter := backend.TypeFilter(r.cfg.PersonType).
			WithReference(model.PropertyParent, group).
			WithProps(model.PropertyID, model.PropertyType, model.PropertyParent).
			WithLimit(r.cfg.SearchLimit)
		found, err := r.reader.SearchEntities(ctx, cred, filter)
		if err != nil {
			return nil, fmt.Errorf("members of group %s: %w", group, err)
		}
		students = append(students, found...)
	}

	batch.Grants = TaskGrants(task, students, r.cfg.GroupProperty)
	logger.Debug("Resolved task grants",
		zap.String("entityID", string(taskID)),
		zap.Int("groups", len(groups)),
		zap.Int("grants", len(batch.Grants)))
	return batch, nil
}

// TaskGrants returns (student, task) expander grants for every student whose
// parent is one of the groups the task references through groupProperty.
func TaskGrants(task *model.Entity, students []model.Entity, groupProperty string) []model.PermissionGrant {
	groups := task.References(groupProperty)
	seen := make(map[model.EntityID]struct{}, len(students))
	var grants []model.PermissionGrant
	for i := range students {
		student := &students[i]
		if student.ID == "" || student.ID == task.ID {
			continue
		}
		if _, dup := seen[student.ID]; dup {
			continue
		}
		if !referencesAny(student, model.PropertyParent, groups) {
			continue
		}
		seen[student.ID] = struct{}{}
		grants = append(grants, model.PermissionGrant{Grantee: student.ID, Resource: task.ID, Kind: model.PermissionExpander})
	}
	return grants
}
