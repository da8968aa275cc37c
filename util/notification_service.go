// util/notification_service.go

package util

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// NotificationService is the operator-facing end of the pass events: every
// failed pass is reported with what an operator needs to re-trigger it.
type NotificationService struct {
	mu       sync.Mutex
	failures map[string]int
}

func NewNotificationService() *NotificationService {
	return &NotificationService{failures: make(map[string]int)}
}

// Register subscribes the service to the pass events on bus.
func (n *NotificationService) Register(bus *EventBus) {
	bus.OnPassFailed(n.NotifyPassFailure)
	bus.OnPassCompleted(n.NotifyPassCompleted)
}

func (n *NotificationService) NotifyPassFailure(ctx context.Context, failure model.PassFailure) error {
	class := FailureClass(failure.Err)

	n.mu.Lock()
	n.failures[class]++
	n.mu.Unlock()

	hint := "re-edit the source entity to retry"
	if class == "credential_rejected" {
		hint = "credential expired or rejected; the entity stays out of sync until its next edit"
	}

	logger.Error("NOTIFICATION: Permission sync failed",
		zap.String("entityID", string(failure.Result.EntityID)),
		zap.String("trigger", string(failure.Result.Trigger)),
		zap.String("principalLabel", failure.PrincipalLabel),
		zap.String("passID", failure.Result.PassID),
		zap.Bool("rerun", failure.Result.Rerun),
		zap.Int("granted", failure.Result.Granted),
		zap.Int("failed", failure.Result.Failed),
		zap.String("class", class),
		zap.String("hint", hint),
		zap.Error(failure.Err))
	return nil
}

func (n *NotificationService) NotifyPassCompleted(ctx context.Context, result model.PassResult) error {
	if result.Granted == 0 {
		return nil
	}
	logger.Info("NOTIFICATION: Permissions synchronized",
		zap.String("entityID", string(result.EntityID)),
		zap.String("trigger", string(result.Trigger)),
		zap.Int("granted", result.Granted),
		zap.Int("skipped", result.Skipped))
	return nil
}

// FailureCounts returns the number of failed passes per failure class.
func (n *NotificationService) FailureCounts() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()

	counts := make(map[string]int, len(n.failures))
	for class, count := range n.failures {
		counts[class] = count
	}
	return counts
}

// FailureClass names the taxonomy bucket of a pass error.
func FailureClass(err error) string {
	var remote *sync_errors.RemoteError
	switch {
	case errors.Is(err, sync_errors.ErrCredentialRejected):
		return "credential_rejected"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, sync_errors.ErrUnknownTrigger):
		return "unknown_trigger"
	}
	return "internal"
}
