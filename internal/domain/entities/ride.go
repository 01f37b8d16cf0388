package entities

import (
	"sync"
	"time"
)

// RideStatus is derived from the ride's state; it is never stored.
//
// The lifecycle is a two-state machine:
//
//	Open ──AddPassenger──▶ Open (passenger set)
//	Open ──StartRide─────▶ Started (terminal)
//
// Started is terminal: every further AddPassenger or StartRide is rejected.
type RideStatus string

const (
	RideStatusOpen    RideStatus = "open"
	RideStatusStarted RideStatus = "started"
)

// rideState is everything a call may change. Calls build a modified copy and
// assign it back only once every precondition has passed, so a rejected call
// leaves the ride exactly as it was.
type rideState struct {
	passenger Address
	admitted  bool
	started   bool
	balance   Amount
	logIndex  uint64
	startedAt time.Time
}

// Ride is the escrow contract for a single ride. Owner, driver and price are
// fixed at construction. It custodies the admitted passenger's payment.
//
// Go Learning Note — Per-Instance Mutex:
// Each Ride embeds its own sync.Mutex and every method takes it for the whole
// call. Calls on one ride are therefore totally ordered (whoever acquires the
// lock first wins), while calls on different rides never contend. A struct
// containing a Mutex must not be copied after first use; that is why rides
// are always handled as *Ride.
type Ride struct {
	address   Address
	owner     Address
	driver    Address
	price     Amount
	policy    StartPolicy
	createdAt time.Time

	mu    sync.Mutex
	state rideState
}

// NewRide constructs a ride deployed at address with the given owner, price
// and driver. A zero price is accepted. An empty policy means
// StartPolicyAnyone.
func NewRide(address, owner Address, price Amount, driver Address, policy StartPolicy) *Ride {
	if policy == "" {
		policy = StartPolicyAnyone
	}
	return &Ride{
		address:   address,
		owner:     owner,
		driver:    driver,
		price:     price,
		policy:    policy,
		createdAt: time.Now().UTC(),
	}
}

func (r *Ride) Address() Address { return r.address }
func (r *Ride) Owner() Address   { return r.owner }
func (r *Ride) Driver() Address  { return r.driver }
func (r *Ride) Price() Amount    { return r.price }

// Passenger returns the admitted passenger and whether one has been admitted.
func (r *Ride) Passenger() (Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.passenger, r.state.admitted
}

func (r *Ride) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.started
}

// Balance is the value currently held in escrow.
func (r *Ride) Balance() Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.balance
}

// AddPassenger admits candidate against the value attached to call.
// Preconditions are checked in this order: the value covers the price, no
// passenger is admitted yet, the ride has not started. The whole attached
// value is held in escrow.
func (r *Ride) AddPassenger(call Call, candidate Address) ([]Event, error) {
	const op = "addPassenger"

	r.mu.Lock()
	defer r.mu.Unlock()

	if call.Value < r.price {
		return nil, revert(op, ErrInsufficientPayment)
	}
	if r.state.admitted {
		return nil, revert(op, ErrAlreadyAdmitted)
	}
	if r.state.started {
		return nil, revert(op, ErrAlreadyStarted)
	}

	next := r.state
	next.passenger = candidate
	next.admitted = true
	next.balance = call.Value
	events := []Event{newPassengerAdded(call.TxID, r.address, next.logIndex, candidate, time.Now().UTC())}
	next.logIndex++

	r.state = next
	return events, nil
}

// StartRide moves the ride to its terminal started state. A started ride
// rejects the call before the start policy is consulted.
func (r *Ride) StartRide(call Call) ([]Event, error) {
	const op = "startRide"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.started {
		return nil, revert(op, ErrAlreadyStarted)
	}
	if !r.mayStart(call.From) {
		return nil, revert(op, ErrNotAuthorized)
	}

	now := time.Now().UTC()
	next := r.state
	next.started = true
	next.startedAt = now
	events := []Event{newRideStarted(call.TxID, r.address, next.logIndex, now)}
	next.logIndex++

	r.state = next
	return events, nil
}

// mayStart must be called with r.mu held.
func (r *Ride) mayStart(caller Address) bool {
	if r.policy != StartPolicyParticipants {
		return true
	}
	if caller == r.owner || caller == r.driver {
		return true
	}
	return r.state.admitted && caller == r.state.passenger
}

// RideView is a point-in-time copy of a ride, safe to serialize and share.
type RideView struct {
	Address   Address     `json:"address"`
	Owner     Address     `json:"owner"`
	Driver    Address     `json:"driver"`
	Price     Amount      `json:"price"`
	Passenger *Address    `json:"passenger,omitempty"`
	Status    RideStatus  `json:"status"`
	Started   bool        `json:"started"`
	Balance   Amount      `json:"balance"`
	Policy    StartPolicy `json:"start_policy"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
}

// Snapshot returns a consistent view of the ride.
func (r *Ride) Snapshot() RideView {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	view := RideView{
		Address:   r.address,
		Owner:     r.owner,
		Driver:    r.driver,
		Price:     r.price,
		Status:    RideStatusOpen,
		Started:   state.started,
		Balance:   state.balance,
		Policy:    r.policy,
		CreatedAt: r.createdAt,
	}
	if state.admitted {
		passenger := state.passenger
		view.Passenger = &passenger
	}
	if state.started {
		view.Status = RideStatusStarted
		startedAt := state.startedAt
		view.StartedAt = &startedAt
	}
	return view
}
