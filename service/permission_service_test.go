package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitselek/esmuseum-map-app-sub006/config"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
	"github.com/mitselek/esmuseum-map-app-sub006/queue"
	"github.com/mitselek/esmuseum-map-app-sub006/resolver"
	"github.com/mitselek/esmuseum-map-app-sub006/service"
	"github.com/mitselek/esmuseum-map-app-sub006/test/fake"
	"github.com/mitselek/esmuseum-map-app-sub006/util"
)

var entityCfg = config.EntityConfiguration{TaskType: "ulesanne", PersonType: "person", GroupProperty: "grupp"}

func setup(concurrency int) (*fake.Backend, *service.PermissionSyncService) {
	b := fake.NewBackend()
	b.Put("C1", "grupp", nil)
	b.Put("C2", "grupp", nil)
	b.Put("T1", "ulesanne", map[string][]model.EntityID{"grupp": {"C1"}})
	b.Put("T2", "ulesanne", map[string][]model.EntityID{"grupp": {"C1"}})
	b.Put("T3", "ulesanne", map[string][]model.EntityID{"grupp": {"C2"}})
	b.Put("S1", "person", map[string][]model.EntityID{model.PropertyParent: {"C1"}})
	b.Put("P1", "person", map[string][]model.EntityID{model.PropertyParent: {"C1"}})
	b.Put("P2", "person", map[string][]model.EntityID{model.PropertyParent: {"C1"}})
	b.Put("P3", "person", map[string][]model.EntityID{model.PropertyParent: {"C2"}})

	registry := resolver.NewRegistry(resolver.NewStudentAddedResolver(b, entityCfg), resolver.NewTaskAssignedResolver(b, entityCfg))
	return b, service.NewPermissionSyncService(registry, b, concurrency)
}

func notify(id model.EntityID, kind model.TriggerKind, expiresAt time.Time) model.WebhookNotification {
	return model.WebhookNotification{
		SourceEntityID: id,
		TriggerKind:    kind,
		Credential:     &model.Credential{PrincipalID: "u1", PrincipalLabel: "teacher@example.com", ExpiresAt: expiresAt, Token: "a.b.c"},
	}
}

func TestStudentAddedScenario(t *testing.T) {
	b, svc := setup(0)
	n := notify("S1", model.StudentAddedToClass, time.Now().Add(time.Hour))

	result, err := svc.RunPass(context.Background(), n, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Granted)
	assert.Equal(t, 0, result.Skipped)
	assert.NotEmpty(t, result.PassID)
	assert.Equal(t, 2, b.Calls(fake.OpGrant))
	assert.Equal(t, 0, b.Calls(fake.OpBulkGrant))

	assert.Equal(t, []model.EntityID{"S1"}, b.Holders("T1", model.PermissionExpander))
	assert.Equal(t, []model.EntityID{"S1"}, b.Holders("T2", model.PermissionExpander))
	assert.Empty(t, b.Holders("T3", model.PermissionExpander))

	// Re-running the same notification changes nothing.
	result, err = svc.RunPass(context.Background(), n, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Granted)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []model.EntityID{"S1"}, b.Holders("T1", model.PermissionExpander))
}

func TestTaskAssignedScenario(t *testing.T) {
	b, svc := setup(0)
	n := notify("T1", model.TaskAssignedToClass, time.Now().Add(time.Hour))

	result, err := svc.RunPass(context.Background(), n, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Granted)
	assert.Equal(t, 1, b.Calls(fake.OpBulkGrant), "class fan-out costs one bulk call")
	assert.Equal(t, 0, b.Calls(fake.OpGrant))
	assert.Equal(t, []model.EntityID{"P1", "P2", "S1"}, b.Holders("T1", model.PermissionExpander))

	result, err = svc.RunPass(context.Background(), n, false)
	require.NoError(t, err)
	assert.Equal(t, model.PassResult{PassID: result.PassID, EntityID: "T1", Trigger: model.TaskAssignedToClass, Skipped: 3}, *result)
}

func TestCredentialExpiresMidPass(t *testing.T) {
	b, svc := setup(1)

	var mu sync.Mutex
	now := time.Now()
	b.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	grants := 0
	b.BeforeCall = func(op string, _ model.EntityID) {
		if op != fake.OpGrant {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		grants++
		if grants == 2 {
			now = now.Add(2 * time.Hour)
		}
	}

	result, err := svc.RunPass(context.Background(), notify("S1", model.StudentAddedToClass, now.Add(time.Hour)), false)

	assert.ErrorIs(t, err, sync_errors.ErrCredentialRejected)
	assert.Equal(t, 1, result.Granted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []model.EntityID{"S1"}, b.Holders("T1", model.PermissionExpander))
	assert.Empty(t, b.Holders("T2", model.PermissionExpander))
}

func TestRemoteErrorDoesNotStopIndependentGrants(t *testing.T) {
	b, svc := setup(1)
	b.FailFor(fake.OpGrant, "T1", &sync_errors.RemoteError{StatusCode: http.StatusInternalServerError, Message: "boom"})

	result, err := svc.RunPass(context.Background(), notify("S1", model.StudentAddedToClass, time.Now().Add(time.Hour)), false)

	var remote *sync_errors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.NotErrorIs(t, err, sync_errors.ErrCredentialRejected)
	assert.Equal(t, 1, result.Granted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []model.EntityID{"S1"}, b.Holders("T2", model.PermissionExpander))
}

func TestRejectedCredentialAbortsRemainingGrants(t *testing.T) {
	b, svc := setup(1)
	b.FailFor(fake.OpGrant, "T1", &sync_errors.RemoteError{StatusCode: http.StatusUnauthorized, Message: "expired"})

	result, err := svc.RunPass(context.Background(), notify("S1", model.StudentAddedToClass, time.Now().Add(time.Hour)), false)

	assert.ErrorIs(t, err, sync_errors.ErrCredentialRejected)
	assert.Equal(t, 0, result.Granted)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, b.Calls(fake.OpGrant))
}

func TestVanishedSourceIsNoOp(t *testing.T) {
	b, svc := setup(0)
	b.Delete("S1")

	result, err := svc.RunPass(context.Background(), notify("S1", model.StudentAddedToClass, time.Now().Add(time.Hour)), false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Granted+result.Skipped+result.Failed)
	assert.Equal(t, 0, b.Calls(fake.OpGrant))
}

func TestUnknownTrigger(t *testing.T) {
	_, svc := setup(0)

	_, err := svc.RunPass(context.Background(), notify("S1", "response-added", time.Now().Add(time.Hour)), false)
	assert.ErrorIs(t, err, sync_errors.ErrUnknownTrigger)
}

func TestBurstConvergesOnLatestState(t *testing.T) {
	b, svc := setup(1)

	entered := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	b.BeforeCall = func(op string, _ model.EntityID) {
		if op == fake.OpGrant {
			once.Do(func() {
				close(entered)
				<-gate
			})
		}
	}

	bus := util.NewEventBus()
	completed := make(chan model.PassResult, 10)
	bus.Subscribe(util.EventPassCompleted, func(_ context.Context, e util.Event) error {
		completed <- e.Payload.(model.PassResult)
		return nil
	})

	d := queue.NewDispatcher(svc, queue.WithCoolDown(time.Millisecond), queue.WithEventBus(bus))
	expires := time.Now().Add(time.Hour)
	require.NoError(t, d.Enqueue(notify("S1", model.StudentAddedToClass, expires)))

	<-entered
	// The first pass has already read S1; the student now joins C2 as well.
	b.SetReferences("S1", model.PropertyParent, "C1", "C2")
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(notify("S1", model.StudentAddedToClass, expires)))
	}
	close(gate)

	var results []model.PassResult
	for len(results) < 2 {
		select {
		case r := <-completed:
			results = append(results, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d passes, want 2", len(results))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	assert.Equal(t, uint64(2), d.Stats().Passes)
	rerun := results[0]
	if !rerun.Rerun {
		rerun = results[1]
	}
	require.True(t, rerun.Rerun)
	assert.Equal(t, 1, rerun.Granted)
	assert.Equal(t, 2, rerun.Skipped)
	for _, task := range []model.EntityID{"T1", "T2", "T3"} {
		assert.Equal(t, []model.EntityID{"S1"}, b.Holders(task, model.PermissionExpander))
	}
}
