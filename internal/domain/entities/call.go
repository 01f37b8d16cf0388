package entities

import (
	"fmt"
	"strings"
)

// Amount is a quantity of value in base units (wei).
type Amount uint64

// Call carries the context of one contract invocation: who sent it, how much
// value travels with it and the transaction it belongs to. It replaces the
// ambient sender/value globals of a ledger runtime.
type Call struct {
	From  Address
	Value Amount
	TxID  string
}

// StartPolicy decides who may start a ride.
type StartPolicy string

const (
	// StartPolicyAnyone lets any caller start an open ride.
	StartPolicyAnyone StartPolicy = "anyone"
	// StartPolicyParticipants restricts StartRide to the owner, the driver
	// and the admitted passenger.
	StartPolicyParticipants StartPolicy = "participants"
)

func ParseStartPolicy(s string) (StartPolicy, error) {
	switch StartPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StartPolicyAnyone:
		return StartPolicyAnyone, nil
	case StartPolicyParticipants:
		return StartPolicyParticipants, nil
	default:
		return "", fmt.Errorf("unknown start policy %q", s)
	}
}
