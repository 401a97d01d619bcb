package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository/memstore"
)

type recordingPublisher struct {
	keys []invalidation.Key
}

func (p *recordingPublisher) Publish(keys ...invalidation.Key) {
	p.keys = append(p.keys, keys...)
}

// newTestService はaliceがオーナーのイベントe1とe2、未所属のcarolを用意する。
func newTestService(t *testing.T) (*Service, *memstore.Store, *recordingPublisher) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	r := store.Repos()
	now := time.Now()

	for _, name := range []string{"alice", "carol"} {
		require.NoError(t, r.Users.CreateWithIdentity(ctx,
			&model.User{ID: name, Email: name + "@example.com", Name: name, CreatedAt: now, UpdatedAt: now},
			&model.Identity{ID: "i-" + name, UserID: name, Provider: "google", ProviderUserID: "g-" + name, CreatedAt: now},
		))
	}
	for _, id := range []string{"e1", "e2"} {
		require.NoError(t, r.Events.Create(ctx, &model.Event{ID: id, Title: id, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, r.Owners.Create(ctx, &model.Owner{ID: "o-" + id, EventID: id, UserID: "alice", Role: model.RoleMember, CreatedAt: now}))
	}

	pub := &recordingPublisher{}
	return NewService(store, pub, nil), store, pub
}

func addAll(t *testing.T, svc *Service, eventID string, durations ...int) []*model.Timer {
	t.Helper()
	timers := make([]*model.Timer, 0, len(durations))
	for _, d := range durations {
		timer, err := svc.AddSession(context.Background(), eventID, "alice", d)
		require.NoError(t, err)
		timers = append(timers, timer)
	}
	return timers
}

// assertDense はイベントのsequenceが1..Nの連番であることを確認し、durationを順に返す。
func assertDense(t *testing.T, store *memstore.Store, eventID string) []int {
	t.Helper()
	timers, err := store.Repos().Timers.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)

	durations := make([]int, len(timers))
	for i, timer := range timers {
		assert.Equal(t, i+1, timer.Sequence, "timer %s", timer.ID)
		durations[i] = timer.DurationMinutes
	}
	return durations
}

func TestAddSession_AppendsSequence(t *testing.T) {
	svc, store, pub := newTestService(t)

	timers := addAll(t, svc, "e1", 10, 20, 30)

	assert.Equal(t, 1, timers[0].Sequence)
	assert.Equal(t, 3, timers[2].Sequence)
	assert.Equal(t, []int{10, 20, 30}, assertDense(t, store, "e1"))
	assert.Contains(t, pub.keys, invalidation.EventKey("e1"))
}

func TestAddSession_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)

	for _, minutes := range []int{0, -5, model.MaxTimerMinutes + 1} {
		_, err := svc.AddSession(context.Background(), "e1", "alice", minutes)
		assert.Equal(t, model.KindValidation, model.KindOf(err), "minutes=%d", minutes)
	}

	_, err := svc.AddSession(context.Background(), "e1", "alice", model.MaxTimerMinutes)
	require.NoError(t, err)
	assert.Len(t, assertDense(t, store, "e1"), 1)
}

func TestUpdateSession_KeepsSequence(t *testing.T) {
	svc, store, _ := newTestService(t)
	timers := addAll(t, svc, "e1", 10, 20)

	updated, err := svc.UpdateSession(context.Background(), timers[0].ID, "alice", 45)
	require.NoError(t, err)

	assert.Equal(t, 1, updated.Sequence)
	assert.Equal(t, []int{45, 20}, assertDense(t, store, "e1"))

	_, err = svc.UpdateSession(context.Background(), "missing", "alice", 10)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestDeleteSession_Renumbers(t *testing.T) {
	svc, store, _ := newTestService(t)
	timers := addAll(t, svc, "e1", 10, 20, 30)

	require.NoError(t, svc.DeleteSession(context.Background(), timers[1].ID, "alice"))

	assert.Equal(t, []int{10, 30}, assertDense(t, store, "e1"))
}

func TestReorder(t *testing.T) {
	svc, store, _ := newTestService(t)
	timers := addAll(t, svc, "e1", 10, 20, 30)

	result, err := svc.Reorder(context.Background(), "e1", "alice",
		[]string{timers[2].ID, timers[0].ID, timers[1].ID})
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, timers[2].ID, result[0].ID)
	assert.Equal(t, timers[0].ID, result[1].ID)
	assert.Equal(t, timers[1].ID, result[2].ID)
	assert.Equal(t, []int{30, 10, 20}, assertDense(t, store, "e1"))
}

func TestReorder_RejectsMismatchedSet(t *testing.T) {
	svc, store, _ := newTestService(t)
	timers := addAll(t, svc, "e1", 10, 20)
	other := addAll(t, svc, "e2", 5)

	tests := []struct {
		name string
		ids  []string
	}{
		{"不足", []string{timers[0].ID}},
		{"重複", []string{timers[0].ID, timers[0].ID}},
		{"他イベントのタイマー", []string{timers[0].ID, other[0].ID}},
		{"過剰", []string{timers[0].ID, timers[1].ID, other[0].ID}},
		{"空", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reorder(context.Background(), "e1", "alice", tt.ids)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Equal(t, []int{10, 20}, assertDense(t, store, "e1"))
		})
	}
}

func TestDenseSequenceAfterMixedOperations(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	timers := addAll(t, svc, "e1", 1, 2, 3, 4, 5)

	require.NoError(t, svc.DeleteSession(ctx, timers[0].ID, "alice"))
	_, err := svc.Reorder(ctx, "e1", "alice", []string{timers[4].ID, timers[2].ID, timers[1].ID, timers[3].ID})
	require.NoError(t, err)
	addAll(t, svc, "e1", 6)
	require.NoError(t, svc.DeleteSession(ctx, timers[2].ID, "alice"))

	assert.Equal(t, []int{5, 2, 4, 6}, assertDense(t, store, "e1"))
}

func TestTimerOperations_ForbiddenForNonOwner(t *testing.T) {
	svc, store, pub := newTestService(t)
	timers := addAll(t, svc, "e1", 10)
	pub.keys = nil
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "e1", "carol", 10)
	assert.Equal(t, model.KindForbidden, model.KindOf(err), "AddSession")

	_, err = svc.UpdateSession(ctx, timers[0].ID, "carol", 20)
	assert.Equal(t, model.KindForbidden, model.KindOf(err), "UpdateSession")

	err = svc.DeleteSession(ctx, timers[0].ID, "carol")
	assert.Equal(t, model.KindForbidden, model.KindOf(err), "DeleteSession")

	_, err = svc.Reorder(ctx, "e1", "carol", []string{timers[0].ID})
	assert.Equal(t, model.KindForbidden, model.KindOf(err), "Reorder")

	_, err = svc.ListSessions(ctx, "e1", "carol")
	assert.Equal(t, model.KindForbidden, model.KindOf(err), "ListSessions")

	assert.Equal(t, []int{10}, assertDense(t, store, "e1"))
	assert.Empty(t, pub.keys)
}

func TestSchedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	addAll(t, svc, "e1", 10, 20, 30)
	start := time.Date(2026, 10, 14, 19, 0, 0, 0, time.UTC)

	slots, err := svc.Schedule(context.Background(), "e1", "alice", start)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assert.Equal(t, start, slots[0].StartsAt)
	assert.Equal(t, start.Add(10*time.Minute), slots[0].EndsAt)
	assert.Equal(t, start.Add(10*time.Minute), slots[1].StartsAt)
	assert.Equal(t, 30*time.Minute, slots[2].Offset)
	assert.Equal(t, start.Add(time.Hour), slots[2].EndsAt)
}

func TestTotal(t *testing.T) {
	slots := []Slot{{DurationMinutes: 15}, {DurationMinutes: 45}}
	assert.Equal(t, time.Hour, Total(slots))
	assert.Zero(t, Total(nil))
}
