// Package utils provides shared helpers: transaction identifiers and value
// denominations.
package utils

import (
	"github.com/google/uuid"
)

// GenerateTxID creates a new UUID v4 string identifying one submitted call.
//
// Go Learning Note — "github.com/google/uuid":
// uuid.New() creates a random (v4) RFC 4122 UUID. It can be generated without
// coordination, which suits identifiers minted concurrently by many request
// goroutines.
func GenerateTxID() string {
	return uuid.New().String()
}

// IsTxID reports whether s parses as a UUID.
func IsTxID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
