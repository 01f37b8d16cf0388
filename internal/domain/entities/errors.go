package entities

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected contract calls. Match them with errors.Is; the
// concrete error returned by a contract is always a *RevertError wrapping one
// of these.
var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrAlreadyAdmitted     = errors.New("passenger already admitted")
	ErrAlreadyStarted      = errors.New("ride already started")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrNotAuthorized       = errors.New("caller not authorized")
)

// ErrAddressInUse is returned by a ride registry when a contract already
// lives at the address being deployed to.
var ErrAddressInUse = errors.New("address already in use")

// Reason strings reported to callers, as a ledger would report them in a
// reverted transaction.
const (
	ReasonNotEnoughMoney        = "Not enough money"
	ReasonPassengerAlreadyAdded = "Passenger already added"
	ReasonRideAlreadyStarted    = "Ride already started"
	ReasonIndexOutOfRange       = "Index out of range"
	ReasonNotRideParticipant    = "Caller is not a ride participant"
	reasonUnknown               = "Reverted"
)

var reasons = map[error]string{
	ErrInsufficientPayment: ReasonNotEnoughMoney,
	ErrAlreadyAdmitted:     ReasonPassengerAlreadyAdded,
	ErrAlreadyStarted:      ReasonRideAlreadyStarted,
	ErrIndexOutOfRange:     ReasonIndexOutOfRange,
	ErrNotAuthorized:       ReasonNotRideParticipant,
}

// RevertError is a rejected call. No state was changed by the call that
// produced it.
//
// Go Learning Note — Custom Error Types:
// Any type with an Error() string method satisfies the error interface. Adding
// an Unwrap() method lets errors.Is and errors.As see through it to the
// wrapped sentinel, so callers can write errors.Is(err, ErrAlreadyStarted)
// without knowing about RevertError at all.
type RevertError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s reverted: %s", e.Op, e.Reason)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

func revert(op string, err error) *RevertError {
	reason, ok := reasons[err]
	if !ok {
		reason = reasonUnknown
	}
	return &RevertError{Op: op, Reason: reason, Err: err}
}

// RevertReason returns the reason string carried by err, or "" if err is not
// a revert.
func RevertReason(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
