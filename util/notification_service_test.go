package util_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
	"github.com/mitselek/esmuseum-map-app-sub006/util"
)

func TestFailureClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Unauthorized", &sync_errors.RemoteError{StatusCode: http.StatusUnauthorized}, "credential_rejected"},
		{"ExpiredLocally", fmt.Errorf("grant T1: %w", sync_errors.ErrCredentialRejected), "credential_rejected"},
		{"ServerError", &sync_errors.RemoteError{StatusCode: http.StatusBadGateway}, "remote_error"},
		{"JoinedRemote", errors.Join(&sync_errors.RemoteError{StatusCode: http.StatusInternalServerError}), "remote_error"},
		{"UnknownTrigger", sync_errors.ErrUnknownTrigger, "unknown_trigger"},
		{"Other", errors.New("dial tcp: refused"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, util.FailureClass(tt.err))
		})
	}
}

func TestNotificationServiceCountsFailures(t *testing.T) {
	bus := util.NewEventBus()
	svc := util.NewNotificationService()
	svc.Register(bus)

	ctx := context.Background()
	bus.Publish(ctx, util.EventPassFailed, model.PassFailure{
		Result:         model.PassResult{EntityID: "S1", Trigger: model.StudentAddedToClass, Rerun: true},
		PrincipalLabel: "teacher@example.com",
		Err:            sync_errors.ErrCredentialRejected,
	})
	bus.Publish(ctx, util.EventPassFailed, model.PassFailure{
		Result: model.PassResult{EntityID: "T1", Trigger: model.TaskAssignedToClass},
		Err:    &sync_errors.RemoteError{StatusCode: http.StatusInternalServerError},
	})
	bus.Publish(ctx, util.EventPassCompleted, model.PassResult{EntityID: "T2", Granted: 3})
	bus.Wait()

	assert.Equal(t, map[string]int{"credential_rejected": 1, "remote_error": 1}, svc.FailureCounts())
}
