// Package accounts checks and registers user credentials for the login and
// register forms. Each Session is one resource handle; all sessions share
// one Store.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/gotcp/webserver/internal/resource"
)

var ErrSessionClosed = errors.New("accounts session is closed")

type Accounts struct {
	store Store
	cost  int
}

// New wraps store. A cost outside bcrypt's range uses bcrypt.DefaultCost.
func New(store Store, cost int) *Accounts {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{store: store, cost: cost}
}

// Seed registers users that do not exist yet.
func (a *Accounts) Seed(users map[string]string) error {
	for user, password := range users {
		if _, err := a.register(user, password); err != nil {
			return fmt.Errorf("seed %q: %w", user, err)
		}
	}
	return nil
}

// Dial opens session id. It has the resource.DialFunc signature.
func (a *Accounts) Dial(ctx context.Context, id int) (resource.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Session{id: id, accounts: a}, nil
}

func (a *Accounts) Close() error {
	return a.store.Close()
}

func (a *Accounts) verify(user, password string) (bool, error) {
	hash, ok, err := a.store.Lookup(user)
	if err != nil || !ok {
		return false, err
	}
	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

func (a *Accounts) register(user, password string) (bool, error) {
	if user == "" {
		return false, ErrEmptyName
	}
	if _, ok, err := a.store.Lookup(user); err != nil || ok {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	return a.store.Insert(user, hash)
}

// Session is a borrowed backend handle.
type Session struct {
	id       int
	accounts *Accounts
	closed   atomic.Bool
}

func (s *Session) ID() int {
	return s.id
}

// Verify reports whether password matches the stored credentials of user.
func (s *Session) Verify(user, password string) (bool, error) {
	if s.closed.Load() {
		return false, ErrSessionClosed
	}
	return s.accounts.verify(user, password)
}

// Register creates user; it reports false if the name is taken.
func (s *Session) Register(user, password string) (bool, error) {
	if s.closed.Load() {
		return false, ErrSessionClosed
	}
	return s.accounts.register(user, password)
}

func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}
