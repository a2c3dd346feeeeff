package accounts

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore is the flat-file account backend: one line per account,
// "username,password", plaintext, no escaping. The whole file is rewritten
// after every successful registration (overwrite, not append; the rewrite is
// not atomic). The format and the plaintext storage are a compatibility
// baseline shared with existing account files.
type FileStore struct {
	logger *zap.Logger
	path   string

	mu        sync.Mutex
	passwords map[string]string // username → password
	order     []string          // usernames in registration order, for stable rewrites
}

// NewFileStore loads the account file at path into memory.
//
// Precondition: logger must be non-nil.
// Postcondition: A missing file is not an error and yields an empty store;
// any other read failure is returned (fatal at startup per the error policy).
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		logger:    logger,
		path:      path,
		passwords: make(map[string]string),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("account file missing, starting empty", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("opening account file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			logger.Warn("skipping malformed account line", zap.String("path", path))
			continue
		}
		username, password := parts[0], parts[1]
		if _, dup := s.passwords[username]; dup {
			logger.Warn("skipping duplicate account line", zap.String("username", username))
			continue
		}
		s.passwords[username] = password
		s.order = append(s.order, username)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading account file %s: %w", path, err)
	}

	logger.Info("accounts loaded",
		zap.String("path", path),
		zap.Int("count", len(s.order)),
	)
	return s, nil
}

// Register creates a new account and rewrites the persisted file.
//
// A persistence failure after startup is logged and ignored (there is no
// retry policy), so the in-memory store may run ahead of the file.
func (s *FileStore) Register(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.passwords[username]; exists {
		return ErrAccountExists
	}

	s.passwords[username] = password
	s.order = append(s.order, username)

	if err := s.persist(); err != nil {
		s.logger.Error("persisting accounts", zap.String("path", s.path), zap.Error(err))
	}
	return nil
}

// Authenticate checks credentials by exact string equality.
func (s *FileStore) Authenticate(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.passwords[username]
	if !ok {
		return ErrAccountNotFound
	}
	if stored != password {
		return ErrInvalidCredentials
	}
	return nil
}

// Close is a no-op; the file is only held open during load and rewrites.
func (s *FileStore) Close() error { return nil }

// Len returns the number of stored accounts.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// persist rewrites the whole account file.
//
// Precondition: s.mu must be held.
func (s *FileStore) persist() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating account file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, username := range s.order {
		fmt.Fprintf(w, "%s,%s\n", username, s.passwords[username])
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing account file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing account file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
