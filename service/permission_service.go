// service/permission_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
	"github.com/mitselek/esmuseum-map-app-sub006/queue"
	"github.com/mitselek/esmuseum-map-app-sub006/resolver"
)

const defaultGrantConcurrency = 4

// Granter is the write side of the backend.
type Granter interface {
	GrantPermission(ctx context.Context, cred *model.Credential, resource, grantee model.EntityID, kind model.PermissionKind) (model.GrantOutcome, error)
	BulkGrantPermissions(ctx context.Context, cred *model.Credential, resource model.EntityID, grantees []model.EntityID, kind model.PermissionKind) (model.BulkGrantResult, error)
}

// PermissionSyncService runs one pass: resolve the grants a notification
// implies, then write them with the notifier's credential.
type PermissionSyncService struct {
	resolvers   *resolver.Registry
	granter     Granter
	concurrency int
}

var _ queue.Runner = &PermissionSyncService{}

// NewPermissionSyncService creates the pass runner. concurrency bounds the
// number of individual grant calls in flight.
func NewPermissionSyncService(resolvers *resolver.Registry, granter Granter, concurrency int) *PermissionSyncService {
	if concurrency <= 0 {
		concurrency = defaultGrantConcurrency
	}
	return &PermissionSyncService{
		resolvers:   resolvers,
		granter:     granter,
		concurrency: concurrency,
	}
}

// RunPass resolves and applies the grants for n. A rejected credential ends
// the pass; other grant failures are collected and the remaining independent
// grants still run. Grants are idempotent, so nothing is rolled back.
func (s *PermissionSyncService) RunPass(ctx context.Context, n model.WebhookNotification, rerun bool) (*model.PassResult, error) {
	result := &model.PassResult{
		PassID:   uuid.NewString(),
		EntityID: n.SourceEntityID,
		Trigger:  n.TriggerKind,
		Rerun:    rerun,
	}

	res, err := s.resolvers.Get(n.TriggerKind)
	if err != nil {
		return result, err
	}

	batch, err := res.Resolve(ctx, n.Credential, n.SourceEntityID)
	if err != nil {
		return result, fmt.Errorf("resolve %s for %s: %w", n.TriggerKind, n.SourceEntityID, err)
	}
	if len(batch.Grants) == 0 {
		return result, nil
	}

	logger.Debug("Applying grant batch",
		zap.String("passID", result.PassID),
		zap.String("entityID", string(n.SourceEntityID)),
		zap.String("mode", batch.Mode.String()),
		zap.Int("grants", len(batch.Grants)))

	if batch.Mode == model.GrantInBulk {
		err = s.applyBulk(ctx, n.Credential, batch, result)
	} else {
		err = s.applyIndividually(ctx, n.Credential, batch, result)
	}
	result.Failed = len(batch.Grants) - result.Granted - result.Skipped
	return result, err
}

func (s *PermissionSyncService) applyIndividually(ctx context.Context, cred *model.Credential, batch *model.GrantBatch, result *model.PassResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var mu sync.Mutex
	var grantErrs []error

	for _, grant := range batch.Grants {
		grant := grant
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome, err := s.granter.GrantPermission(gctx, cred, grant.Resource, grant.Grantee, grant.Kind)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && outcome == model.AlreadyGranted:
				result.Skipped++
			case err == nil:
				result.Granted++
			case errors.Is(err, sync_errors.ErrCredentialRejected):
				return err
			case errors.Is(err, sync_errors.ErrEntityNotFound):
				logger.Warn("Grant target vanished", zap.String("resource", string(grant.Resource)))
				result.Skipped++
			case gctx.Err() != nil:
				// aborted by a rejected credential elsewhere in the batch
			default:
				grantErrs = append(grantErrs, err)
			}
			return nil
		})
	}

	return errors.Join(g.Wait(), errors.Join(grantErrs...))
}

func (s *PermissionSyncService) applyBulk(ctx context.Context, cred *model.Credential, batch *model.GrantBatch, result *model.PassResult) error {
	order, grouped := batch.ByResource()
	kind := batch.Grants[0].Kind

	var errs []error
	for _, resource := range order {
		grantees := grouped[resource]
		res, err := s.granter.BulkGrantPermissions(ctx, cred, resource, grantees, kind)
		result.Granted += res.Granted
		result.Skipped += res.Skipped
		if err == nil {
			continue
		}
		if errors.Is(err, sync_errors.ErrEntityNotFound) {
			logger.Warn("Grant target vanished", zap.String("resource", string(resource)))
			result.Skipped += len(grantees) - res.Granted - res.Skipped
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, sync_errors.ErrCredentialRejected) {
			break
		}
	}
	return errors.Join(errs...)
}
