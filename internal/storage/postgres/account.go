package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/accounts"
)

// AccountStore is the accounts.Store implementation backed by PostgreSQL.
// Unlike the flat-file backend it stores bcrypt hashes rather than plaintext;
// the wire protocol still carries plaintext, so client compatibility is
// unaffected.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates an AccountStore backed by the given pool.
//
// Precondition: pool must be a valid, open connection pool with the accounts
// table migrated.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Register inserts a new account with a bcrypt-hashed password.
//
// Postcondition: Returns accounts.ErrAccountExists if the username is taken.
func (s *AccountStore) Register(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	_, err = s.pool.DB().Exec(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ($1, $2)`,
		username, hash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return accounts.ErrAccountExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Authenticate verifies credentials against the stored bcrypt hash.
//
// Postcondition: Returns accounts.ErrAccountNotFound if the username doesn't
// exist, or accounts.ErrInvalidCredentials if the password is wrong.
func (s *AccountStore) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	err := s.pool.DB().QueryRow(ctx,
		`SELECT password_hash FROM accounts WHERE username = $1`,
		username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.ErrAccountNotFound
		}
		return fmt.Errorf("querying account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return accounts.ErrInvalidCredentials
	}
	return nil
}

// Close closes the underlying pool.
func (s *AccountStore) Close() error {
	s.pool.Close()
	return nil
}

var _ accounts.Store = (*AccountStore)(nil)

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
