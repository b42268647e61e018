package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/storage"
)

func newTestStore() *storage.MemoryStore {
	return storage.NewMemoryStore(internal.NewNopLogger())
}

func newTestRegistry() *caregiver.Registry {
	return caregiver.NewRegistry([]string{"alice", "bob"}, internal.NewNopLogger())
}

var testBase = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return testBase.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func TestStartAndEndSleep(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	started, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(20, 0)})
	require.NoError(t, err)
	assert.Equal(t, internal.EventSleep, started.Type)
	assert.True(t, started.Sleep.Open())
	assert.Equal(t, at(20, 0), started.Timestamp)

	ended, err := EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(21, 30)})
	require.NoError(t, err)
	require.NotNil(t, ended.Sleep.End)
	assert.Equal(t, at(21, 30), *ended.Sleep.End)
	require.NotNil(t, ended.Amount)
	assert.Equal(t, 90, *ended.Amount)
}

func TestStartSleepConflictsWhenAlreadyOpen(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(20, 0)})
	require.NoError(t, err)

	_, err = StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(21, 0)})
	assert.True(t, internal.IsConflict(err))

	// A different caregiver is not affected.
	_, err = StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "bob", At: at(21, 0)})
	assert.NoError(t, err)
}

func TestEndSleepShortNapNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(14, 0)})
	require.NoError(t, err)

	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(14, 5)})
	require.True(t, internal.IsConfirmationRequired(err))
	var confirm *internal.ConfirmationRequiredError
	require.ErrorAs(t, err, &confirm)
	assert.Equal(t, 5, confirm.Minutes)

	// The session must still be open after the round-trip.
	open, err := store.LastOpenSleep(ctx, "alice", false)
	require.NoError(t, err)
	require.NotNil(t, open)

	// Confirmed write path bypasses the plausibility check.
	ended, err := EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(14, 5), Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, 5, *ended.Amount)
}

func TestEndSleepLongNapNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(8, 0)})
	require.NoError(t, err)

	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(14, 0)})
	assert.True(t, internal.IsConfirmationRequired(err))
}

func TestEndSleepHardCeilingRejectedEvenWhenConfirmed(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(0, 0)})
	require.NoError(t, err)

	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(13, 0), Confirmed: true})
	assert.True(t, internal.IsValidation(err))
}

func TestEndSleepBeforeStartRejected(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(14, 0)})
	require.NoError(t, err)

	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(13, 0)})
	assert.True(t, internal.IsValidation(err))
}

func TestEndSleepWithoutOpenSession(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(10, 0)})
	assert.True(t, internal.IsNotFound(err))
}

func TestEndSleepRoundsWithFloorOfOne(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(10, 0)})
	require.NoError(t, err)

	ended, err := EndSleep(ctx, store, reg, &EndSleepRequest{
		UserName: "alice", At: at(10, 0).Add(10 * time.Second), Confirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, *ended.Amount)
}

func TestConcurrentEndSleepExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(20, 0)})
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(21, 0)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, conflicts := 0, 0
	for err := range errs {
		if err == nil {
			successes++
		} else if internal.IsConflict(err) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestEndSleepAlreadyCompletedIsConflict(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(20, 0)})
	require.NoError(t, err)
	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(21, 0)})
	require.NoError(t, err)

	// Ending again at an instant the completed session covers lost a race
	// with whoever closed it.
	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(21, 0)})
	assert.True(t, internal.IsConflict(err))

	// Past the session there is nothing to end.
	_, err = EndSleep(ctx, store, reg, &EndSleepRequest{UserName: "alice", At: at(22, 0)})
	assert.True(t, internal.IsNotFound(err))
}

func TestUnknownCaregiverRejected(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "mallory", At: at(20, 0)})
	assert.True(t, internal.IsValidation(err))
}
