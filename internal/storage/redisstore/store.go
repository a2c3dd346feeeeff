// Package redisstore provides the Redis account backend.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/accounts"
)

// keyPrefix namespaces all relay server keys.
const keyPrefix = "relay"

// accountKey returns the key holding the password for a username.
func accountKey(username string) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, username)
}

// Store is the accounts.Store implementation backed by Redis. Passwords are
// stored as plaintext values, matching the flat-file backend's compatibility
// baseline.
type Store struct {
	client *redis.Client
}

// New connects to the Redis instance at url.
//
// Postcondition: Returns a connected Store or a non-nil error (fatal at
// startup per the error policy).
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store with an existing client (for testing).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Register creates a new account. SETNX provides the uniqueness guarantee.
//
// Postcondition: Returns accounts.ErrAccountExists when the username is taken.
func (s *Store) Register(ctx context.Context, username, password string) error {
	ok, err := s.client.SetNX(ctx, accountKey(username), password, 0).Result()
	if err != nil {
		return fmt.Errorf("storing account: %w", err)
	}
	if !ok {
		return accounts.ErrAccountExists
	}
	return nil
}

// Authenticate checks credentials by exact string equality.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	stored, err := s.client.Get(ctx, accountKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return accounts.ErrAccountNotFound
		}
		return fmt.Errorf("fetching account: %w", err)
	}
	if stored != password {
		return accounts.ErrInvalidCredentials
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ accounts.Store = (*Store)(nil)
