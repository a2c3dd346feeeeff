// Package accounts defines the account store consulted for registration and
// authentication, plus its default flat-file backend.
package accounts

import (
	"context"
	"errors"
)

// ErrAccountExists is returned when registering a username that is taken.
var ErrAccountExists = errors.New("account already exists")

// ErrAccountNotFound is returned when no account has the given username.
var ErrAccountNotFound = errors.New("account not found")

// ErrInvalidCredentials is returned when the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store provides account registration and authentication. Usernames are
// unique and compared case-sensitively by exact match.
type Store interface {
	// Register creates a new account.
	//
	// Postcondition: Returns ErrAccountExists when any stored account has an
	// equal username; in that case the store is unchanged.
	Register(ctx context.Context, username, password string) error

	// Authenticate verifies credentials.
	//
	// Postcondition: Returns nil only when an account with exactly this
	// username and password exists; ErrAccountNotFound when the username is
	// unknown, ErrInvalidCredentials when the password is wrong.
	Authenticate(ctx context.Context, username, password string) error

	// Close releases any resources held by the store.
	Close() error
}
