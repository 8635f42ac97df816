// Package notify delivers domain events to downstream real-time displays.
// Delivery is fire-and-forget: callers never fail because of it.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

const (
	EventApprovalNeeded = "approval-needed"
	EventClaimUpdated   = "claim-updated"
)

// Payload is the event body.
type Payload map[string]any

// Event is the envelope published to a sink.
type Event struct {
	ID      string    `json:"id"`
	Name    string    `json:"event"`
	Payload Payload   `json:"payload"`
	At      time.Time `json:"at"`
}

// NewEvent stamps an id and time on a payload.
func NewEvent(name string, payload Payload) Event {
	return Event{ID: utilities.NewKSUID(), Name: name, Payload: payload, At: time.Now().UTC()}
}

// Sink receives domain events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

type multi []Sink

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
