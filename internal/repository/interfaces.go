package repository

import (
	"context"
	"errors"

	"rideescrow/internal/domain/entities"
)

var ErrRideNotFound = errors.New("ride not found")

// RideRepository indexes deployed rides by address. Rides are live objects;
// state changes go through their own methods, never through the repository.
type RideRepository interface {
	Create(ctx context.Context, ride *entities.Ride) error
	GetByAddress(ctx context.Context, address entities.Address) (*entities.Ride, error)
	List(ctx context.Context) ([]*entities.Ride, error)
	GetByDriver(ctx context.Context, driver entities.Address) ([]*entities.Ride, error)
	GetByOwner(ctx context.Context, owner entities.Address) ([]*entities.Ride, error)
}

// EventFilter selects events from an EventStore. Zero fields match
// everything; AfterSeq skips events with Seq <= AfterSeq.
type EventFilter struct {
	Epoch    string
	Contract *entities.Address
	Name     entities.EventName
	TxID     string
	AfterSeq uint64
	Limit    int
}

// EventStore is the append-only log of committed contract events.
type EventStore interface {
	// Append stores events in order and returns them with Seq assigned.
	Append(ctx context.Context, events []entities.Event) ([]entities.Event, error)
	// List returns matching events ordered by Seq.
	List(ctx context.Context, filter EventFilter) ([]entities.Event, error)
}
