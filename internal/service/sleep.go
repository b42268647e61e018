package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/storage"
)

var validate = validator.New()

// Plausibility window for an explicitly ended session, in minutes. Durations
// outside it require the caller to confirm; the hard bounds in the model
// hold regardless.
const (
	shortSessionMinutes = 10
	longSessionMinutes  = 300
)

type StartSleepRequest struct {
	UserName string    `json:"user_name" validate:"required"`
	At       time.Time `json:"at" validate:"required"`
}

type EndSleepRequest struct {
	UserName  string    `json:"user_name" validate:"required"`
	At        time.Time `json:"at" validate:"required"`
	Confirmed bool      `json:"confirmed"`
}

// StartSleep opens a session for the caregiver. A caregiver with a session
// already open gets a conflict; the open-session read takes a row lock so
// two concurrent starts cannot both pass the check.
func StartSleep(ctx context.Context, store storage.EventStore, reg *caregiver.Registry, req *StartSleepRequest) (*internal.Event, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("", err.Error())
	}
	user, ok := reg.Resolve(req.UserName)
	if !ok {
		return nil, internal.NewValidationError("user_name", "unknown caregiver: "+req.UserName)
	}

	var created *internal.Event
	err := store.InTx(ctx, func(tx storage.EventStore) error {
		open, err := tx.LastOpenSleep(ctx, user, true)
		if err != nil {
			return err
		}
		if open != nil {
			return internal.NewConflictError("caregiver " + user + " already has an open sleep session")
		}
		created, err = tx.Create(ctx, internal.NewSleepEvent(user, req.At))
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EndSleep completes the caregiver's open session at req.At. The duration is
// rounded to whole minutes with a floor of 1; implausible durations are
// rejected with a confirmation round-trip unless req.Confirmed is set, and
// durations beyond the hard ceiling are rejected outright.
func EndSleep(ctx context.Context, store storage.EventStore, reg *caregiver.Registry, req *EndSleepRequest) (*internal.Event, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("", err.Error())
	}
	user, ok := reg.Resolve(req.UserName)
	if !ok {
		return nil, internal.NewValidationError("user_name", "unknown caregiver: "+req.UserName)
	}

	var updated *internal.Event
	err := store.InTx(ctx, func(tx storage.EventStore) error {
		open, err := tx.LastOpenSleep(ctx, user, true)
		if err != nil {
			return err
		}
		if open == nil {
			return closedUnderneathOrNotFound(ctx, tx, user, req.At)
		}
		if !req.At.After(open.Sleep.Start) {
			return internal.NewValidationError("at", "wake-up must be after sleep start")
		}
		mins := internal.RoundedMinutes(open.Sleep.Start, req.At)
		if mins > internal.MaxSleepMinutes {
			return internal.NewValidationError("at", "sleep duration exceeds 12 hours; fix the start time instead")
		}
		if !req.Confirmed && (mins < shortSessionMinutes || mins > longSessionMinutes) {
			return internal.NewConfirmationRequired(mins, "unusual sleep duration")
		}
		end := req.At
		updated, err = tx.Update(ctx, open.ID, storage.EventUpdate{Amount: &mins, SleepEnd: &end})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// closedUnderneathOrNotFound distinguishes the two ways an end can find no
// open session. When a completed session covers the wake-up instant, a
// concurrent end (or an auto-close) got there first: the caller held a live
// session when it started, so that is a conflict. Otherwise there is simply
// nothing to end.
func closedUnderneathOrNotFound(ctx context.Context, tx storage.EventStore, user string, at time.Time) error {
	sleeps, err := tx.List(ctx, storage.EventFilter{User: user, Types: []internal.EventType{internal.EventSleep}})
	if err != nil {
		return err
	}
	for _, s := range sleeps {
		if s.Sleep.End == nil {
			continue
		}
		if !at.Before(s.Sleep.Start) && !at.After(*s.Sleep.End) {
			return internal.NewConflictError("sleep session was already completed at " + s.Sleep.End.Format(time.RFC3339))
		}
	}
	return internal.NewNotFoundError("open sleep session for " + user)
}

// autoCloseOpenSleeps closes every open session started before the new
// event's timestamp, inside the caller's transaction. One child sleeps
// whoever records the activity, so the sweep covers all caregivers, not
// just the recorder. Events predating a session start are left to the
// correction passes. The event, not a human, is the authority here, so no
// confirmation applies.
func autoCloseOpenSleeps(ctx context.Context, tx storage.EventStore, users []string, at time.Time) error {
	for _, user := range users {
		open, err := tx.LastOpenSleep(ctx, user, true)
		if err != nil {
			return err
		}
		if open == nil || !at.After(open.Sleep.Start) {
			continue
		}
		mins := internal.RoundedMinutes(open.Sleep.Start, at)
		end := at
		if _, err := tx.Update(ctx, open.ID, storage.EventUpdate{Amount: &mins, SleepEnd: &end}); err != nil {
			return err
		}
	}
	return nil
}
