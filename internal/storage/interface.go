package storage

import (
	"context"
	"time"

	"github.com/yourname/babylog/internal"
)

// EventFilter narrows List. From is inclusive, To exclusive, both on the
// event's anchor timestamp.
type EventFilter struct {
	From  *time.Time
	To    *time.Time
	Types []internal.EventType
	User  string
}

// EventUpdate carries the mutable fields of an event; nil means unchanged.
type EventUpdate struct {
	Amount        *int
	Subtype       *internal.DiaperSubtype
	Timestamp     *time.Time
	SleepStart    *time.Time
	SleepEnd      *time.Time
	ClearSleepEnd bool
}

// EventStore is the storage contract shared by the Postgres and in-memory
// backends. All sleep-interval mutations must run inside InTx; the store
// passed to the callback is transaction-scoped and LastOpenSleep with
// forUpdate=true holds an exclusive row lock until the transaction ends.
type EventStore interface {
	Create(ctx context.Context, ev *internal.Event) (*internal.Event, error)
	Update(ctx context.Context, id int64, upd EventUpdate) (*internal.Event, error)
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*internal.Event, error)
	List(ctx context.Context, f EventFilter) ([]internal.Event, error)

	// LastOpenSleep returns the caregiver's open sleep session, or nil when
	// none is open. forUpdate is only meaningful inside InTx.
	LastOpenSleep(ctx context.Context, user string, forUpdate bool) (*internal.Event, error)

	// OverlappingSleep returns sleep sessions whose interval intersects
	// [start, end), open sessions included, excluding excludeID.
	OverlappingSleep(ctx context.Context, start, end time.Time, excludeID int64) ([]internal.Event, error)

	// InTx runs fn against a transaction-scoped store. Any error from fn
	// rolls back everything and is returned unchanged.
	InTx(ctx context.Context, fn func(EventStore) error) error
}
