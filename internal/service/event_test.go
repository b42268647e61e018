package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/babylog/internal"
)

func intp(v int) *int { return &v }

func TestRecordEventValidation(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	cases := []struct {
		name string
		req  EventRequest
	}{
		{"unknown type", EventRequest{Type: "walk", UserName: "alice", Timestamp: at(10, 0)}},
		{"unknown caregiver", EventRequest{Type: "milk", UserName: "mallory", Timestamp: at(10, 0)}},
		{"negative milk amount", EventRequest{Type: "milk", Amount: intp(-10), UserName: "alice", Timestamp: at(10, 0)}},
		{"amount on diaper", EventRequest{Type: "diaper", Amount: intp(1), UserName: "alice", Timestamp: at(10, 0)}},
		{"amount on bath", EventRequest{Type: "bath", Amount: intp(1), UserName: "alice", Timestamp: at(10, 0)}},
		{"bad diaper subtype", EventRequest{Type: "diaper", Subtype: "wet", UserName: "alice", Timestamp: at(10, 0)}},
		{"subtype on milk", EventRequest{Type: "milk", Subtype: "pee", UserName: "alice", Timestamp: at(10, 0)}},
		{"amount on sleep", EventRequest{Type: "sleep", Amount: intp(60), UserName: "alice", Timestamp: at(10, 0)}},
		{"missing timestamp", EventRequest{Type: "milk", UserName: "alice"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RecordEvent(ctx, store, reg, &tc.req)
			assert.True(t, internal.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestRecordEventNormalizesLegacyDiaperAlias(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	ev, err := RecordEvent(ctx, store, reg, &EventRequest{
		Type: "nappy", Subtype: "pee", UserName: "alice", Timestamp: at(9, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, internal.EventDiaper, ev.Type)
	require.NotNil(t, ev.Subtype)
	assert.Equal(t, internal.DiaperPee, *ev.Subtype)
}

func TestRecordEventResolvesCaregiverSpelling(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	ev, err := RecordEvent(ctx, store, reg, &EventRequest{
		Type: "bath", UserName: "ALICE", Timestamp: at(18, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.UserName)
}

func TestRecordEventSleepTypeOpensSession(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	ev, err := RecordEvent(ctx, store, reg, &EventRequest{
		Type: "sleep", UserName: "alice", Timestamp: at(20, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, ev.Sleep)
	assert.True(t, ev.Sleep.Open())
}

func TestRecordEventAutoClosesOpenSleep(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	started, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(22, 0)})
	require.NoError(t, err)

	// A second caregiver records a diaper change while alice's session is
	// still open; the child is clearly awake, so the session closes.
	_, err = RecordEvent(ctx, store, reg, &EventRequest{
		Type: "diaper", Subtype: "pee", UserName: "bob", Timestamp: at(23, 30),
	})
	require.NoError(t, err)

	closed, err := store.GetByID(ctx, started.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.Sleep.End)
	assert.Equal(t, at(23, 30), *closed.Sleep.End)
	require.NotNil(t, closed.Amount)
	assert.Equal(t, 90, *closed.Amount)
}

func TestRecordEventBeforeSessionStartLeavesItOpen(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	started, err := StartSleep(ctx, store, reg, &StartSleepRequest{UserName: "alice", At: at(22, 0)})
	require.NoError(t, err)

	// Retroactive entry predating the session start is not an auto-close
	// trigger; the correction passes own that case.
	_, err = RecordEvent(ctx, store, reg, &EventRequest{
		Type: "milk", Amount: intp(120), UserName: "alice", Timestamp: at(21, 0),
	})
	require.NoError(t, err)

	still, err := store.GetByID(ctx, started.ID)
	require.NoError(t, err)
	assert.True(t, still.Sleep.Open())
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	ev, err := RecordEvent(ctx, store, reg, &EventRequest{
		Type: "milk", Amount: intp(90), UserName: "alice", Timestamp: at(8, 0),
	})
	require.NoError(t, err)

	require.NoError(t, DeleteEvent(ctx, store, ev.ID))
	err = DeleteEvent(ctx, store, ev.ID)
	assert.True(t, internal.IsNotFound(err))
}

func TestListEventsFilters(t *testing.T) {
	ctx := context.Background()
	store, reg := newTestStore(), newTestRegistry()

	_, err := RecordEvent(ctx, store, reg, &EventRequest{Type: "milk", Amount: intp(90), UserName: "alice", Timestamp: at(8, 0)})
	require.NoError(t, err)
	_, err = RecordEvent(ctx, store, reg, &EventRequest{Type: "diaper", Subtype: "pee", UserName: "bob", Timestamp: at(9, 0)})
	require.NoError(t, err)

	from, to := at(7, 0), at(8, 30)
	events, err := ListEvents(ctx, store, &ListEventsRequest{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, internal.EventMilk, events[0].Type)

	events, err = ListEvents(ctx, store, &ListEventsRequest{Types: []string{"nappy"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, internal.EventDiaper, events[0].Type)

	_, err = ListEvents(ctx, store, &ListEventsRequest{Types: []string{"walk"}})
	assert.True(t, internal.IsValidation(err))
}
