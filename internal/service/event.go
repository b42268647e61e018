package service

import (
	"context"
	"time"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/storage"
)

type EventRequest struct {
	Type      string    `json:"type" validate:"required"`
	Amount    *int      `json:"amount,omitempty"`
	Subtype   string    `json:"subtype,omitempty"`
	UserName  string    `json:"user_name" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

type ListEventsRequest struct {
	From  *time.Time
	To    *time.Time
	Types []string
	User  string
}

// RecordEvent validates and persists one event. A sleep type is routed
// through the state machine; any other type auto-closes open sleep sessions
// across the household inside the same transaction that writes the new
// event.
func RecordEvent(ctx context.Context, store storage.EventStore, reg *caregiver.Registry, req *EventRequest) (*internal.Event, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.NewValidationError("", err.Error())
	}
	typ, ok := internal.NormalizeEventType(req.Type)
	if !ok {
		return nil, internal.NewValidationError("type", "unknown event type: "+req.Type)
	}
	user, ok := reg.Resolve(req.UserName)
	if !ok {
		return nil, internal.NewValidationError("user_name", "unknown caregiver: "+req.UserName)
	}

	if typ == internal.EventSleep {
		if req.Amount != nil {
			return nil, internal.NewValidationError("amount", "sleep duration is computed, not supplied")
		}
		if req.Subtype != "" {
			return nil, internal.NewValidationError("subtype", "subtype is not valid for sleep")
		}
		return StartSleep(ctx, store, reg, &StartSleepRequest{UserName: user, At: req.Timestamp})
	}

	ev := &internal.Event{
		Type:      typ,
		UserName:  user,
		Timestamp: req.Timestamp,
	}
	switch typ {
	case internal.EventMilk:
		if req.Amount != nil {
			if *req.Amount <= 0 {
				return nil, internal.NewValidationError("amount", "milk amount must be positive milliliters")
			}
			amt := *req.Amount
			ev.Amount = &amt
		}
		if req.Subtype != "" {
			return nil, internal.NewValidationError("subtype", "subtype is only valid for diaper")
		}
	case internal.EventDiaper:
		if req.Amount != nil {
			return nil, internal.NewValidationError("amount", "diaper events carry no amount")
		}
		if req.Subtype != "" {
			sub := internal.DiaperSubtype(req.Subtype)
			if !internal.ValidDiaperSubtype(sub) {
				return nil, internal.NewValidationError("subtype", "diaper subtype must be pee, poo or both")
			}
			ev.Subtype = &sub
		}
	case internal.EventBath:
		if req.Amount != nil {
			return nil, internal.NewValidationError("amount", "bath events carry no amount")
		}
		if req.Subtype != "" {
			return nil, internal.NewValidationError("subtype", "subtype is only valid for diaper")
		}
	}

	var created *internal.Event
	err := store.InTx(ctx, func(tx storage.EventStore) error {
		if err := autoCloseOpenSleeps(ctx, tx, reg.Names(), req.Timestamp); err != nil {
			return err
		}
		var err error
		created, err = tx.Create(ctx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListEvents returns events matching the filter, oldest first.
func ListEvents(ctx context.Context, store storage.EventStore, req *ListEventsRequest) ([]internal.Event, error) {
	f := storage.EventFilter{From: req.From, To: req.To, User: req.User}
	for _, raw := range req.Types {
		typ, ok := internal.NormalizeEventType(raw)
		if !ok {
			return nil, internal.NewValidationError("type", "unknown event type: "+raw)
		}
		f.Types = append(f.Types, typ)
	}
	return store.List(ctx, f)
}

// DeleteEvent removes an event unconditionally. There is no soft delete.
func DeleteEvent(ctx context.Context, store storage.EventStore, id int64) error {
	return store.Delete(ctx, id)
}
