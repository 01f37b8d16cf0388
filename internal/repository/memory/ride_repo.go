package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/repository"
)

// RideRepository stores rides in memory, keyed by contract address.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[entities.Address]*entities.Ride
}

func NewRideRepository() *RideRepository {
	return &RideRepository{
		rides: make(map[entities.Address]*entities.Ride),
	}
}

// Create registers a ride. Addresses are unique; registering one twice fails
// with entities.ErrAddressInUse.
func (r *RideRepository) Create(ctx context.Context, ride *entities.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rides[ride.Address()]; exists {
		return fmt.Errorf("%w: ride %s", entities.ErrAddressInUse, ride.Address())
	}
	r.rides[ride.Address()] = ride
	return nil
}

func (r *RideRepository) GetByAddress(ctx context.Context, address entities.Address) (*entities.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ride, exists := r.rides[address]
	if !exists {
		return nil, repository.ErrRideNotFound
	}
	return ride, nil
}

// List returns every ride ordered by address, so output is stable across
// calls despite map iteration order.
func (r *RideRepository) List(ctx context.Context) ([]*entities.Ride, error) {
	return r.filter(func(*entities.Ride) bool { return true }), nil
}

// GetByDriver is an O(n) scan.
func (r *RideRepository) GetByDriver(ctx context.Context, driver entities.Address) ([]*entities.Ride, error) {
	return r.filter(func(ride *entities.Ride) bool { return ride.Driver() == driver }), nil
}

func (r *RideRepository) GetByOwner(ctx context.Context, owner entities.Address) ([]*entities.Ride, error) {
	return r.filter(func(ride *entities.Ride) bool { return ride.Owner() == owner }), nil
}

func (r *RideRepository) filter(keep func(*entities.Ride) bool) []*entities.Ride {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rides []*entities.Ride
	for _, ride := range r.rides {
		if keep(ride) {
			rides = append(rides, ride)
		}
	}
	sort.Slice(rides, func(i, j int) bool {
		a, b := rides[i].Address(), rides[j].Address()
		return string(a[:]) < string(b[:])
	})
	return rides
}

var _ repository.RideRepository = (*RideRepository)(nil)
