// Package entities defines the escrow contracts of the system: the Ride state
// machine, the RideFactory that deploys rides, and the value types they share
// (Address, Amount, Call, Event). Nothing here knows about HTTP, brokers or
// databases.
package entities

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the size of an account or contract address in bytes.
const AddressLength = 20

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account (owner, driver, passenger) or a deployed
// contract. It renders as 0x-prefixed lowercase hex.
//
// Go Learning Note — Arrays as Map Keys:
// A fixed-size array like [20]byte is a comparable value type, so Address can
// be used with == and as a map key directly. A []byte slice could not.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed (or bare) 40 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != AddressLength*2 {
		return a, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidAddress, AddressLength*2, len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on bad
// input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address. b must be exactly AddressLength
// bytes long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText makes addresses render as hex strings in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Address domains keep the two deployment schemes apart: contracts created by
// another contract (the factory's rides) and contracts deployed directly by
// an account. The same creator and nonce give different addresses in each.
const (
	domainContract   uint8 = 1
	domainDeployment uint8 = 2
)

// derivationPreimage is encoded as a four element CBOR array.
type derivationPreimage struct {
	_       struct{} `cbor:",toarray"`
	Domain  uint8
	Salt    string
	Creator []byte
	Nonce   uint64
}

// preimageEncMode is a package variable rather than set in init so that other
// package-level variables may call DeriveAddress.
var preimageEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: canonical enc mode: %v", err))
	}
	return em
}

// DeriveAddress computes the address of the nonce-th contract created by the
// contract at creator: the last 20 bytes of Keccak-256 over the canonical
// CBOR encoding of [domain, "", creator, nonce]. The same inputs always give
// the same address.
func DeriveAddress(creator Address, nonce uint64) Address {
	return deriveAddress(derivationPreimage{Domain: domainContract, Creator: creator[:], Nonce: nonce})
}

// DeriveDeploymentAddress computes the address of the nonce-th contract that
// account deployer deploys directly during epoch. The epoch salts every
// top-level deployment, so addresses are never reused across epochs.
func DeriveDeploymentAddress(epoch string, deployer Address, nonce uint64) Address {
	return deriveAddress(derivationPreimage{Domain: domainDeployment, Salt: epoch, Creator: deployer[:], Nonce: nonce})
}

func deriveAddress(p derivationPreimage) Address {
	preimage, err := preimageEncMode.Marshal(p)
	if err != nil {
		// Integers, a string and a byte slice always encode.
		panic(fmt.Sprintf("cbor: encode derivation preimage: %v", err))
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(preimage)
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}
