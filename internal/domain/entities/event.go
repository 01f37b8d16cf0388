package entities

import "time"

type EventName string

const (
	EventRideCreated    EventName = "RideCreated"
	EventPassengerAdded EventName = "PassengerAdded"
	EventRideStarted    EventName = "RideStarted"
)

// Event is a log record emitted by a contract when a call commits.
//
// Epoch names the service run that committed the event. Contract state lives
// for one epoch, so LogIndex restarts at zero in every epoch.
//
// LogIndex counts the events of one contract and is assigned under that
// contract's lock, so it orders a contract's events even when they reach a
// sink out of order. Seq is the position in the global event store and is
// assigned by the store on append.
type Event struct {
	Seq       uint64    `json:"seq" cbor:"1,keyasint,omitempty"`
	TxID      string    `json:"tx_id" cbor:"2,keyasint"`
	Name      EventName `json:"name" cbor:"3,keyasint"`
	Contract  Address   `json:"contract" cbor:"4,keyasint"`
	LogIndex  uint64    `json:"log_index" cbor:"5,keyasint"`
	Ride      *Address  `json:"ride,omitempty" cbor:"6,keyasint,omitempty"`
	Driver    *Address  `json:"driver,omitempty" cbor:"7,keyasint,omitempty"`
	Price     *Amount   `json:"price,omitempty" cbor:"8,keyasint,omitempty"`
	Passenger *Address  `json:"passenger,omitempty" cbor:"9,keyasint,omitempty"`
	EmittedAt time.Time `json:"emitted_at" cbor:"10,keyasint"`
	Epoch     string    `json:"epoch" cbor:"11,keyasint"`
}

func newRideCreated(txID string, factory Address, logIndex uint64, ride, driver Address, price Amount, at time.Time) Event {
	return Event{
		TxID:      txID,
		Name:      EventRideCreated,
		Contract:  factory,
		LogIndex:  logIndex,
		Ride:      &ride,
		Driver:    &driver,
		Price:     &price,
		EmittedAt: at,
	}
}

func newPassengerAdded(txID string, ride Address, logIndex uint64, passenger Address, at time.Time) Event {
	return Event{
		TxID:      txID,
		Name:      EventPassengerAdded,
		Contract:  ride,
		LogIndex:  logIndex,
		Passenger: &passenger,
		EmittedAt: at,
	}
}

func newRideStarted(txID string, ride Address, logIndex uint64, at time.Time) Event {
	return Event{
		TxID:      txID,
		Name:      EventRideStarted,
		Contract:  ride,
		LogIndex:  logIndex,
		EmittedAt: at,
	}
}
