package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideescrow/internal/config"
	"rideescrow/internal/domain/entities"
	"rideescrow/internal/logger"
	"rideescrow/internal/repository"
	"rideescrow/internal/repository/memory"
	"rideescrow/pkg/utils"
)

var (
	ownerA  = entities.MustParseAddress("0xa00000000000000000000000000000000000000a")
	driverB = entities.MustParseAddress("0xb00000000000000000000000000000000000000b")
	riderC  = entities.MustParseAddress("0xc00000000000000000000000000000000000000c")
	price   = entities.Amount(utils.Gwei)
)

type recordingSink struct {
	mu     sync.Mutex
	events []entities.Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, events []entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func setupEscrowService(cfg *config.Config, sinks ...EventSink) (*EscrowService, *memory.EventStore) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	store := memory.NewEventStore()
	service := NewEscrowService(cfg, memory.NewRideRepository(), store, logger.Discard(), sinks...)
	return service, store
}

func TestEscrowService_CreateRide(t *testing.T) {
	service, _ := setupEscrowService(nil)
	ctx := context.Background()

	receipt, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, receipt.Status)
	assert.Equal(t, service.FactoryAddress(), receipt.Contract)
	assert.True(t, utils.IsTxID(receipt.TxID))
	require.NotNil(t, receipt.Created)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, entities.EventRideCreated, receipt.Events[0].Name)
	assert.Equal(t, uint64(1), receipt.Events[0].Seq)
	assert.Equal(t, service.Epoch(), receipt.Events[0].Epoch)

	address, err := service.RideAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, *receipt.Created, address)

	view, err := service.GetRide(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, price, view.Price)
	assert.Equal(t, driverB, view.Driver)
	assert.Equal(t, ownerA, view.Owner)
	assert.False(t, view.Started)

	_, err = service.RideAt(ctx, 1)
	assert.ErrorIs(t, err, entities.ErrIndexOutOfRange)
}

func TestEscrowService_CreateRideAppendsOne(t *testing.T) {
	service, _ := setupEscrowService(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		before := len(service.FactoryRides(ctx))
		receipt, err := service.CreateRide(ctx, ownerA, price, driverB)
		require.NoError(t, err)
		rides := service.FactoryRides(ctx)
		require.Len(t, rides, before+1)
		assert.Equal(t, *receipt.Created, rides[len(rides)-1])
	}
}

// Scenario: price 1 gwei, Ride(owner A, price, driver B), rider C.
func TestEscrowService_Scenario(t *testing.T) {
	sink := &recordingSink{}
	service, _ := setupEscrowService(nil, sink)
	ctx := context.Background()

	deployed, err := service.DeployRide(ctx, ownerA, ownerA, price, driverB)
	require.NoError(t, err)
	ride := *deployed.Created

	receipt, err := service.AddPassenger(ctx, riderC, ride, riderC, price)
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, entities.EventPassengerAdded, receipt.Events[0].Name)
	assert.Equal(t, riderC, *receipt.Events[0].Passenger)

	receipt, err = service.AddPassenger(ctx, riderC, ride, riderC, price)
	require.ErrorIs(t, err, entities.ErrAlreadyAdmitted)
	assert.Equal(t, ReceiptReverted, receipt.Status)
	assert.Equal(t, "Passenger already added", receipt.Reason)
	assert.Empty(t, receipt.Events)

	receipt, err = service.StartRide(ctx, riderC, ride)
	require.NoError(t, err)
	assert.Equal(t, entities.EventRideStarted, receipt.Events[0].Name)

	receipt, err = service.StartRide(ctx, riderC, ride)
	require.ErrorIs(t, err, entities.ErrAlreadyStarted)
	assert.Equal(t, "Ride already started", receipt.Reason)

	view, err := service.GetRide(ctx, ride)
	require.NoError(t, err)
	assert.Equal(t, entities.RideStatusStarted, view.Status)
	assert.Equal(t, price, view.Balance)

	// Only committed calls reach the sinks.
	require.Len(t, sink.events, 2)
	assert.Equal(t, entities.EventPassengerAdded, sink.events[0].Name)
	assert.Equal(t, entities.EventRideStarted, sink.events[1].Name)
}

func TestEscrowService_InsufficientPaymentLeavesRideOpen(t *testing.T) {
	service, store := setupEscrowService(nil)
	ctx := context.Background()

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)

	receipt, err := service.AddPassenger(ctx, riderC, *created.Created, riderC, price-1)
	require.ErrorIs(t, err, entities.ErrInsufficientPayment)
	assert.Equal(t, "Not enough money", receipt.Reason)

	view, err := service.GetRide(ctx, *created.Created)
	require.NoError(t, err)
	assert.Nil(t, view.Passenger)
	assert.Equal(t, entities.Amount(0), view.Balance)
	stored, err := store.List(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "only the creation event is stored")
}

func TestEscrowService_UnknownRide(t *testing.T) {
	service, _ := setupEscrowService(nil)
	ctx := context.Background()
	missing := entities.DeriveAddress(ownerA, 42)

	_, err := service.AddPassenger(ctx, riderC, missing, riderC, price)
	assert.ErrorIs(t, err, ErrRideNotFound)

	_, err = service.StartRide(ctx, riderC, missing)
	assert.ErrorIs(t, err, ErrRideNotFound)

	_, err = service.GetRide(ctx, missing)
	assert.ErrorIs(t, err, ErrRideNotFound)
}

func TestEscrowService_StartPolicyParticipants(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Escrow.StartPolicy = entities.StartPolicyParticipants
	service, _ := setupEscrowService(cfg)
	ctx := context.Background()

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	ride := *created.Created

	stranger := entities.DeriveAddress(riderC, 1)
	receipt, err := service.StartRide(ctx, stranger, ride)
	require.ErrorIs(t, err, entities.ErrNotAuthorized)
	assert.Equal(t, ReceiptReverted, receipt.Status)

	_, err = service.StartRide(ctx, driverB, ride)
	require.NoError(t, err)
}

func TestEscrowService_SinkFailureDoesNotRevert(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	service, _ := setupEscrowService(nil, failing)
	ctx := context.Background()

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, created.Status)
	require.Len(t, created.SinkErrors, 1)
	assert.Contains(t, created.SinkErrors[0], "broker down")

	address, err := service.RideAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, *created.Created, address)
}

func TestEscrowService_DeployRideAddresses(t *testing.T) {
	service, _ := setupEscrowService(nil)
	ctx := context.Background()

	first, err := service.DeployRide(ctx, ownerA, ownerA, price, driverB)
	require.NoError(t, err)
	second, err := service.DeployRide(ctx, ownerA, riderC, price, driverB)
	require.NoError(t, err)

	assert.Equal(t, entities.DeriveDeploymentAddress(service.Epoch(), ownerA, 0), *first.Created)
	assert.Equal(t, entities.DeriveDeploymentAddress(service.Epoch(), ownerA, 1), *second.Created)
	assert.Empty(t, first.Events)

	view, err := service.GetRide(ctx, *second.Created)
	require.NoError(t, err)
	assert.Equal(t, riderC, view.Owner)

	// Standalone rides are not listed by the factory.
	assert.Empty(t, service.FactoryRides(ctx))

	byDriver, err := service.RidesByDriver(ctx, driverB)
	require.NoError(t, err)
	assert.Len(t, byDriver, 2)

	byOwner, err := service.RidesByOwner(ctx, riderC)
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, *second.Created, byOwner[0].Address)

	all, err := service.ListRides(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEscrowService_ReservedDeployers(t *testing.T) {
	cfg := config.NewDefaultConfig()
	service, _ := setupEscrowService(cfg)
	ctx := context.Background()

	tests := []struct {
		name     string
		deployer entities.Address
	}{
		{"factory deployer", cfg.Escrow.FactoryDeployer},
		{"factory contract", service.FactoryAddress()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.DeployRide(ctx, tt.deployer, ownerA, price, driverB)
			assert.ErrorIs(t, err, ErrReservedDeployer)
		})
	}

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	assert.Equal(t, []entities.Address{*created.Created}, service.FactoryRides(ctx))
}

func TestEscrowService_SkipsOccupiedAddresses(t *testing.T) {
	rides := memory.NewRideRepository()
	service := NewEscrowService(config.NewDefaultConfig(), rides, memory.NewEventStore(), logger.Discard())
	ctx := context.Background()

	squatted := []entities.Address{
		entities.DeriveAddress(service.FactoryAddress(), 1),
		entities.DeriveDeploymentAddress(service.Epoch(), ownerA, 0),
	}
	for _, address := range squatted {
		require.NoError(t, rides.Create(ctx, entities.NewRide(address, riderC, price, driverB, entities.StartPolicyAnyone)))
	}

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	assert.Equal(t, entities.DeriveAddress(service.FactoryAddress(), 2), *created.Created)
	assert.Equal(t, []entities.Address{*created.Created}, service.FactoryRides(ctx))

	deployed, err := service.DeployRide(ctx, ownerA, ownerA, price, driverB)
	require.NoError(t, err)
	assert.Equal(t, entities.DeriveDeploymentAddress(service.Epoch(), ownerA, 1), *deployed.Created)

	// The squatters are untouched.
	for _, address := range squatted {
		view, err := service.GetRide(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, riderC, view.Owner)
	}
}

// Two services over one journal behave like a restart against a persistent
// event store.
func TestEscrowService_RestartSharesJournal(t *testing.T) {
	store := memory.NewEventStore()
	ctx := context.Background()

	var receipts []*Receipt
	var runs []*EscrowService
	for i := 0; i < 2; i++ {
		service := NewEscrowService(config.NewDefaultConfig(), memory.NewRideRepository(), store, logger.Discard())
		receipt, err := service.CreateRide(ctx, ownerA, price, driverB)
		require.NoError(t, err)
		assert.Empty(t, receipt.SinkErrors)
		runs = append(runs, service)
		receipts = append(receipts, receipt)
	}

	assert.NotEqual(t, runs[0].Epoch(), runs[1].Epoch())
	assert.NotEqual(t, runs[0].FactoryAddress(), runs[1].FactoryAddress())
	assert.NotEqual(t, *receipts[0].Created, *receipts[1].Created)

	for i, service := range runs {
		events, err := store.List(ctx, repository.EventFilter{Epoch: service.Epoch()})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, *receipts[i].Created, *events[0].Ride)
		assert.Equal(t, uint64(0), events[0].LogIndex)
	}
}

func TestEscrowService_ConcurrentAddPassenger(t *testing.T) {
	service, store := setupEscrowService(nil)
	ctx := context.Background()

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	ride := *created.Created

	const riders = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rider := entities.DeriveAddress(riderC, uint64(i))
			_, err := service.AddPassenger(ctx, rider, ride, rider, price)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, entities.ErrAlreadyAdmitted) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, riders-1, rejected)

	events, err := store.List(ctx, repository.EventFilter{Contract: &ride})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNotificationService_Publish(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(config.LogConfig{Level: "info", Format: "text"}, "test", &buf)
	require.NoError(t, err)

	sink := &recordingSink{}
	notifications := NewNotificationService(log)
	service, _ := setupEscrowService(nil, notifications, sink)
	ctx := context.Background()

	created, err := service.CreateRide(ctx, ownerA, price, driverB)
	require.NoError(t, err)
	_, err = service.AddPassenger(ctx, riderC, *created.Created, riderC, price)
	require.NoError(t, err)
	_, err = service.StartRide(ctx, riderC, *created.Created)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "new ride created")
	assert.Contains(t, out, "price=\"1 gwei\"")
	assert.Contains(t, out, "payment held in escrow")
	assert.Contains(t, out, "ride started")
	assert.Len(t, sink.events, 3)
}
