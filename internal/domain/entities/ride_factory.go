package entities

import (
	"errors"
	"sync"
	"time"
)

// RideFactory deploys rides and keeps an append-only index of their addresses
// in creation order.
type RideFactory struct {
	address Address
	policy  StartPolicy

	mu       sync.Mutex
	rides    []Address
	nonce    uint64
	logIndex uint64
}

// NewRideFactory creates a factory living at address. Every ride it deploys
// uses policy for StartRide.
func NewRideFactory(address Address, policy StartPolicy) *RideFactory {
	if policy == "" {
		policy = StartPolicyAnyone
	}
	return &RideFactory{
		address: address,
		policy:  policy,
		// Contract nonces start at 1.
		nonce: 1,
	}
}

func (f *RideFactory) Address() Address { return f.address }

// CreateRide deploys a ride owned by the caller. register is invoked with the
// new ride while the factory lock is held. If register reports
// ErrAddressInUse the address is skipped and the next nonce is tried; any
// other error is returned unchanged and nothing is recorded. A nil register is
// allowed.
func (f *RideFactory) CreateRide(call Call, price Amount, driver Address, register func(*Ride) error) (*Ride, []Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ride *Ride
	for {
		ride = NewRide(DeriveAddress(f.address, f.nonce), call.From, price, driver, f.policy)
		if register == nil {
			break
		}
		err := register(ride)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrAddressInUse) {
			return nil, nil, err
		}
		f.nonce++
	}

	address := ride.Address()
	events := []Event{newRideCreated(call.TxID, f.address, f.logIndex, address, driver, price, time.Now().UTC())}
	f.rides = append(f.rides, address)
	f.nonce++
	f.logIndex++
	return ride, events, nil
}

// RideAt returns the address of the index-th ride created.
func (f *RideFactory) RideAt(index int) (Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index < 0 || index >= len(f.rides) {
		return ZeroAddress, revert("rides", ErrIndexOutOfRange)
	}
	return f.rides[index], nil
}

// Rides returns a copy of all ride addresses in creation order.
func (f *RideFactory) Rides() []Address {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Address, len(f.rides))
	copy(out, f.rides)
	return out
}
