// Package identity manages the ward's user accounts: a small fixed roster
// persisted alongside the ward document, with a shared default password
// until each user picks their own.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wardtrack/wardtrack/internal/platform/store"
)

// DefaultPassword is assigned to newly seeded users and restored on reset.
const DefaultPassword = "1"

var ErrUnknownUser = errors.New("unknown user")

// User is the stored account record. Passwords are compared in plaintext,
// matching the legacy roster this replaces.
type User struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Service persists the roster under store.UsersKey.
type Service struct {
	docs store.DocumentStore
	log  zerolog.Logger

	mu sync.Mutex
}

func NewService(docs store.DocumentStore, logger zerolog.Logger) *Service {
	return &Service{docs: docs, log: logger}
}

func (s *Service) load(ctx context.Context) ([]User, error) {
	data, found, err := s.docs.Load(ctx, store.UsersKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !found {
		return []User{}, nil
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		s.log.Warn().Err(err).Msg("user roster unreadable, starting empty")
		return []User{}, nil
	}
	return users, nil
}

func (s *Service) save(ctx context.Context, users []User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	if err := s.docs.Save(ctx, store.UsersKey, data); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// EnsureUsers seeds any of the given names not yet in the roster with the
// default password. Existing accounts are left untouched.
func (s *Service) EnsureUsers(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(users))
	for _, u := range users {
		existing[u.Name] = true
	}
	added := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || existing[name] {
			continue
		}
		users = append(users, User{Name: name, Password: DefaultPassword})
		existing[name] = true
		added++
	}
	if added == 0 {
		return nil
	}
	s.log.Info().Int("added", added).Msg("seeded user accounts")
	return s.save(ctx, users)
}

// Authenticate reports whether the name/password pair matches an account.
func (s *Service) Authenticate(ctx context.Context, name, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.Name == name {
			return u.Password == password, nil
		}
	}
	return false, nil
}

// ChangePassword replaces a user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, name, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("new password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i, u := range users {
		if u.Name != name {
			continue
		}
		if u.Password != oldPassword {
			return fmt.Errorf("current password does not match")
		}
		users[i].Password = newPassword
		return s.save(ctx, users)
	}
	return ErrUnknownUser
}

// ResetPassword puts a user back on the default password.
func (s *Service) ResetPassword(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i, u := range users {
		if u.Name == name {
			users[i].Password = DefaultPassword
			return s.save(ctx, users)
		}
	}
	return ErrUnknownUser
}

// List returns the account names in roster order. Passwords never leave
// this package.
func (s *Service) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names, nil
}
