// Package mutation runs optimistic updates with an explicit rollback path.
package mutation

import (
	"context"
	"fmt"
	"sync"

	"github.com/carefollow/callboard/internal/log"
	"github.com/hashicorp/go-multierror"
)

// Command is a single optimistic update.
//
// Apply performs the local change that is visible to subscribers right
// away, Commit persists it and Rollback reverts Apply if Commit failed.
type Command interface {
	// Key identifies the record the command operates on. Commands with the
	// same key never run concurrently.
	Key() string

	Apply(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Runner executes commands and serializes commands sharing a key.
type Runner struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewRunner() *Runner {
	return &Runner{
		locks: make(map[string]*keyLock),
	}
}

func (r *Runner) acquire(key string) *keyLock {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = new(keyLock)
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()

	return l
}

func (r *Runner) release(key string, l *keyLock) {
	l.Unlock()

	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()
}

// Run applies cmd and commits it. If the commit fails the command is rolled
// back and the commit error is returned, joined with the rollback error if
// any.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	key := cmd.Key()

	l := r.acquire(key)
	defer r.release(key, l)

	if err := cmd.Apply(ctx); err != nil {
		return fmt.Errorf("failed to apply %s: %w", key, err)
	}

	commitErr := cmd.Commit(ctx)
	if commitErr == nil {
		return nil
	}

	log.L(ctx).WithField("key", key).Warnf("commit failed, rolling back: %s", commitErr)

	if err := cmd.Rollback(ctx); err != nil {
		log.L(ctx).WithField("key", key).Errorf("failed to roll back: %s", err)

		return multierror.Append(commitErr, fmt.Errorf("rollback: %w", err))
	}

	return commitErr
}

// Func is a Command built from functions. Missing functions are treated as
// no-ops.
type Func struct {
	ID         string
	ApplyFn    func(ctx context.Context) error
	CommitFn   func(ctx context.Context) error
	RollbackFn func(ctx context.Context) error
}

func (f Func) Key() string { return f.ID }

func (f Func) Apply(ctx context.Context) error {
	if f.ApplyFn == nil {
		return nil
	}

	return f.ApplyFn(ctx)
}

func (f Func) Commit(ctx context.Context) error {
	if f.CommitFn == nil {
		return nil
	}

	return f.CommitFn(ctx)
}

func (f Func) Rollback(ctx context.Context) error {
	if f.RollbackFn == nil {
		return nil
	}

	return f.RollbackFn(ctx)
}

var _ Command = Func{}
