package entities

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var factoryAddr = DeriveDeploymentAddress("test-epoch", ownerAddr, 0)

func TestRideFactory_CreateRide(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")

	ride, events, err := factory.CreateRide(Call{From: ownerAddr, TxID: "tx-create"}, oneGwei, driverAddr, nil)
	require.NoError(t, err)
	require.Len(t, factory.Rides(), 1)

	address, err := factory.RideAt(0)
	require.NoError(t, err)
	assert.Equal(t, ride.Address(), address)
	assert.Equal(t, oneGwei, ride.Price())
	assert.Equal(t, driverAddr, ride.Driver())
	assert.Equal(t, ownerAddr, ride.Owner())

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventRideCreated, ev.Name)
	assert.Equal(t, factoryAddr, ev.Contract)
	assert.Equal(t, address, *ev.Ride)
	assert.Equal(t, driverAddr, *ev.Driver)
	assert.Equal(t, oneGwei, *ev.Price)

	// The deployed ride is fully functional.
	_, err = ride.AddPassenger(Call{From: riderAddr, Value: oneGwei}, riderAddr)
	require.NoError(t, err)
	_, err = ride.StartRide(Call{From: riderAddr})
	require.NoError(t, err)
}

func TestRideFactory_RideAtOutOfRange(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")

	_, err := factory.RideAt(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, _, err = factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, nil)
	require.NoError(t, err)

	for _, index := range []int{-1, 1, 100} {
		_, err = factory.RideAt(index)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", index)
	}
}

func TestRideFactory_DistinctAddressesInOrder(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")

	var created []Address
	for i := 0; i < 5; i++ {
		ride, _, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, nil)
		require.NoError(t, err)
		created = append(created, ride.Address())
	}

	assert.Equal(t, created, factory.Rides())
	seen := make(map[Address]bool)
	for _, a := range created {
		assert.False(t, seen[a], "duplicate address %s", a)
		seen[a] = true
	}
}

func TestRideFactory_RegisterFailureRecordsNothing(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")
	boom := errors.New("registry unavailable")

	_, events, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, func(*Ride) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Nil(t, events)
	assert.Empty(t, factory.Rides())

	// The failed attempt does not consume an address.
	first, _, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress(factoryAddr, 1), first.Address())
}

func TestRideFactory_SkipsOccupiedAddress(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")
	occupied := map[Address]bool{DeriveAddress(factoryAddr, 1): true}
	register := func(r *Ride) error {
		if occupied[r.Address()] {
			return fmt.Errorf("%w: %s", ErrAddressInUse, r.Address())
		}
		occupied[r.Address()] = true
		return nil
	}

	ride, events, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, register)
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress(factoryAddr, 2), ride.Address())
	assert.Equal(t, ride.Address(), *events[0].Ride)
	assert.Equal(t, uint64(0), events[0].LogIndex)

	next, _, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, register)
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress(factoryAddr, 3), next.Address())
	assert.Equal(t, []Address{ride.Address(), next.Address()}, factory.Rides())
}

func TestRideFactory_PolicyIsInherited(t *testing.T) {
	factory := NewRideFactory(factoryAddr, StartPolicyParticipants)

	ride, _, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, nil)
	require.NoError(t, err)

	_, err = ride.StartRide(Call{From: otherAddr})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRideFactory_ConcurrentCreate(t *testing.T) {
	factory := NewRideFactory(factoryAddr, "")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := factory.CreateRide(Call{From: ownerAddr}, oneGwei, driverAddr, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rides := factory.Rides()
	require.Len(t, rides, n)
	for i, a := range rides {
		assert.Equal(t, DeriveAddress(factoryAddr, uint64(i+1)), a)
	}
}
