// Command ridetoken mints a bearer token for an address, signed with the
// server's configured secret. Calls made with the token act as that address.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"rideescrow/internal/auth"
	"rideescrow/internal/config"
	"rideescrow/internal/domain/entities"
)

func main() {
	address := flag.String("address", "", "caller address (0x-prefixed, 20 bytes)")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to RIDE_TOKEN_TTL")
	flag.Parse()

	if err := run(*address, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "ridetoken:", err)
		os.Exit(1)
	}
}

func run(address string, ttl time.Duration) error {
	caller, err := entities.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("-address: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ttl > 0 {
		cfg.Auth.TokenTTL = ttl
	}

	token, err := auth.NewTokenService(cfg.Auth).Issue(caller)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
