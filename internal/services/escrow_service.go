package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rideescrow/internal/config"
	"rideescrow/internal/domain/entities"
	"rideescrow/internal/repository"
	"rideescrow/pkg/utils"
)

var ErrRideNotFound = repository.ErrRideNotFound

// ErrReservedDeployer rejects direct deployments from the factory's deployer
// account and from the factory contract itself.
var ErrReservedDeployer = errors.New("deployer address is reserved")

type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// Receipt records the outcome of one state-changing call, the way a ledger
// reports a mined transaction. Reverted receipts carry no events.
type Receipt struct {
	TxID     string           `json:"tx_id"`
	Contract entities.Address `json:"contract"`
	From     entities.Address `json:"from"`
	Value    entities.Amount  `json:"value"`
	Status   ReceiptStatus    `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Events   []entities.Event `json:"events"`
	// Created is the new contract address for deployments.
	Created *entities.Address `json:"created,omitempty"`
	// SinkErrors lists post-commit delivery failures. The call itself
	// succeeded regardless.
	SinkErrors []string `json:"sink_errors,omitempty"`
}

// EscrowService is the host for the escrow contracts. It threads caller
// identity and value into every call, assigns transaction ids, records the
// emitted events and forwards them to the configured sinks.
//
// Contract state is held in memory for the life of the service. Each service
// runs in its own epoch: top-level deployments are salted with it and every
// event is stamped with it, so a persistent journal never sees an address or
// log index reused across restarts.
type EscrowService struct {
	epoch    string
	factory  *entities.RideFactory
	rideRepo repository.RideRepository
	events   repository.EventStore
	sinks    []EventSink
	config   *config.Config
	log      *slog.Logger

	// Nonces for rides deployed directly, per deployer.
	deployMu sync.Mutex
	nonces   map[entities.Address]uint64
}

// NewEscrowService starts a new epoch and deploys the factory at the address
// derived from the configured deployer and that epoch.
func NewEscrowService(
	cfg *config.Config,
	rideRepo repository.RideRepository,
	eventStore repository.EventStore,
	log *slog.Logger,
	sinks ...EventSink,
) *EscrowService {
	epoch := utils.GenerateTxID()
	factoryAddress := entities.DeriveDeploymentAddress(epoch, cfg.Escrow.FactoryDeployer, 0)
	return &EscrowService{
		epoch:    epoch,
		factory:  entities.NewRideFactory(factoryAddress, cfg.Escrow.StartPolicy),
		rideRepo: rideRepo,
		events:   eventStore,
		sinks:    sinks,
		config:   cfg,
		log:      log.With("component", "escrow"),
		nonces:   make(map[entities.Address]uint64),
	}
}

func (s *EscrowService) FactoryAddress() entities.Address {
	return s.factory.Address()
}

// Epoch identifies this service run.
func (s *EscrowService) Epoch() string {
	return s.epoch
}

// CreateRide deploys a ride through the factory with the caller as owner.
func (s *EscrowService) CreateRide(ctx context.Context, caller entities.Address, price entities.Amount, driver entities.Address) (*Receipt, error) {
	call := entities.Call{From: caller, TxID: utils.GenerateTxID()}

	ride, events, err := s.factory.CreateRide(call, price, driver, func(r *entities.Ride) error {
		return s.rideRepo.Create(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}

	created := ride.Address()
	receipt := s.commit(ctx, call, s.factory.Address(), events)
	receipt.Created = &created
	s.log.InfoContext(ctx, "ride_created",
		"tx_id", call.TxID, "ride", created, "owner", caller, "driver", driver, "price", uint64(price))
	return receipt, nil
}

// DeployRide deploys a standalone ride, outside the factory, with an explicit
// owner. The address derives from the epoch, the deployer and its deployment
// count. Standalone rides emit no creation event.
func (s *EscrowService) DeployRide(ctx context.Context, deployer, owner entities.Address, price entities.Amount, driver entities.Address) (*Receipt, error) {
	if deployer == s.config.Escrow.FactoryDeployer || deployer == s.factory.Address() {
		return nil, fmt.Errorf("deploy ride from %s: %w", deployer, ErrReservedDeployer)
	}
	call := entities.Call{From: deployer, TxID: utils.GenerateTxID()}

	s.deployMu.Lock()
	var ride *entities.Ride
	for nonce := s.nonces[deployer]; ; nonce++ {
		ride = entities.NewRide(entities.DeriveDeploymentAddress(s.epoch, deployer, nonce), owner, price, driver, s.config.Escrow.StartPolicy)
		err := s.rideRepo.Create(ctx, ride)
		if err == nil {
			s.nonces[deployer] = nonce + 1
			break
		}
		if !errors.Is(err, entities.ErrAddressInUse) {
			s.deployMu.Unlock()
			return nil, fmt.Errorf("deploy ride: %w", err)
		}
	}
	s.deployMu.Unlock()

	created := ride.Address()
	receipt := s.commit(ctx, call, created, nil)
	receipt.Created = &created
	s.log.InfoContext(ctx, "ride_deployed",
		"tx_id", call.TxID, "ride", created, "owner", owner, "driver", driver, "price", uint64(price))
	return receipt, nil
}

// AddPassenger admits candidate to the ride at address, paying value. A
// rejected call returns a reverted receipt together with the error.
func (s *EscrowService) AddPassenger(ctx context.Context, caller, address, candidate entities.Address, value entities.Amount) (*Receipt, error) {
	ride, err := s.rideRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	call := entities.Call{From: caller, Value: value, TxID: utils.GenerateTxID()}
	events, err := ride.AddPassenger(call, candidate)
	if err != nil {
		return s.reverted(ctx, call, address, err), err
	}

	s.log.InfoContext(ctx, "passenger_added",
		"tx_id", call.TxID, "ride", address, "passenger", candidate, "value", uint64(value))
	return s.commit(ctx, call, address, events), nil
}

// StartRide starts the ride at address on behalf of caller.
func (s *EscrowService) StartRide(ctx context.Context, caller, address entities.Address) (*Receipt, error) {
	ride, err := s.rideRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	call := entities.Call{From: caller, TxID: utils.GenerateTxID()}
	events, err := ride.StartRide(call)
	if err != nil {
		return s.reverted(ctx, call, address, err), err
	}

	s.log.InfoContext(ctx, "ride_started", "tx_id", call.TxID, "ride", address, "caller", caller)
	return s.commit(ctx, call, address, events), nil
}

func (s *EscrowService) GetRide(ctx context.Context, address entities.Address) (entities.RideView, error) {
	ride, err := s.rideRepo.GetByAddress(ctx, address)
	if err != nil {
		return entities.RideView{}, err
	}
	return ride.Snapshot(), nil
}

// RideAt is the factory's rides(index) accessor.
func (s *EscrowService) RideAt(ctx context.Context, index int) (entities.Address, error) {
	return s.factory.RideAt(index)
}

// FactoryRides lists the factory's rides in creation order.
func (s *EscrowService) FactoryRides(ctx context.Context) []entities.Address {
	return s.factory.Rides()
}

// ListRides returns views of every ride, factory or standalone.
func (s *EscrowService) ListRides(ctx context.Context) ([]entities.RideView, error) {
	rides, err := s.rideRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	return snapshots(rides), nil
}

// RidesByDriver returns views of every ride, factory or standalone, assigned
// to driver.
func (s *EscrowService) RidesByDriver(ctx context.Context, driver entities.Address) ([]entities.RideView, error) {
	rides, err := s.rideRepo.GetByDriver(ctx, driver)
	if err != nil {
		return nil, err
	}
	return snapshots(rides), nil
}

// RidesByOwner returns views of every ride owned by owner.
func (s *EscrowService) RidesByOwner(ctx context.Context, owner entities.Address) ([]entities.RideView, error) {
	rides, err := s.rideRepo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return snapshots(rides), nil
}

func snapshots(rides []*entities.Ride) []entities.RideView {
	views := make([]entities.RideView, len(rides))
	for i, r := range rides {
		views[i] = r.Snapshot()
	}
	return views
}

func (s *EscrowService) ListEvents(ctx context.Context, filter repository.EventFilter) ([]entities.Event, error) {
	return s.events.List(ctx, filter)
}

// commit records the events of a successful call and hands them to the sinks.
// The call is already applied; failures here are reported on the receipt.
func (s *EscrowService) commit(ctx context.Context, call entities.Call, contract entities.Address, events []entities.Event) *Receipt {
	receipt := &Receipt{
		TxID:     call.TxID,
		Contract: contract,
		From:     call.From,
		Value:    call.Value,
		Status:   ReceiptSuccess,
		Events:   events,
	}
	if len(events) == 0 {
		receipt.Events = []entities.Event{}
		return receipt
	}
	for i := range events {
		events[i].Epoch = s.epoch
	}

	stored, err := s.events.Append(ctx, events)
	if err != nil {
		s.log.ErrorContext(ctx, "event_store_append_failed", "tx_id", call.TxID, "error", err)
		receipt.SinkErrors = append(receipt.SinkErrors, fmt.Sprintf("event store: %v", err))
	} else {
		receipt.Events = stored
	}

	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, receipt.Events); err != nil {
			s.log.ErrorContext(ctx, "event_sink_failed", "sink", sink.Name(), "tx_id", call.TxID, "error", err)
			receipt.SinkErrors = append(receipt.SinkErrors, fmt.Sprintf("%s: %v", sink.Name(), err))
		}
	}
	return receipt
}

func (s *EscrowService) reverted(ctx context.Context, call entities.Call, contract entities.Address, err error) *Receipt {
	reason := entities.RevertReason(err)
	if reason == "" {
		reason = err.Error()
	}
	s.log.InfoContext(ctx, "call_reverted", "tx_id", call.TxID, "contract", contract, "from", call.From, "reason", reason)
	return &Receipt{
		TxID:     call.TxID,
		Contract: contract,
		From:     call.From,
		Value:    call.Value,
		Status:   ReceiptReverted,
		Reason:   reason,
		Events:   []entities.Event{},
	}
}
