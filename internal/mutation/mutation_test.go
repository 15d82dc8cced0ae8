package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunCommit(t *testing.T) {
	var steps []string

	err := NewRunner().Run(context.Background(), Func{
		ID:         "a",
		ApplyFn:    func(context.Context) error { steps = append(steps, "apply"); return nil },
		CommitFn:   func(context.Context) error { steps = append(steps, "commit"); return nil },
		RollbackFn: func(context.Context) error { steps = append(steps, "rollback"); return nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if got := strings.Join(steps, ","); got != "apply,commit" {
		t.Errorf("unexpected steps %q", got)
	}
}

func TestRunRollback(t *testing.T) {
	commitErr := errors.New("backend unavailable")

	cases := []struct {
		name        string
		rollbackErr error
		steps       string
	}{
		{"rollback succeeds", nil, "apply,commit,rollback"},
		{"rollback fails", errors.New("store unavailable"), "apply,commit,rollback"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var steps []string

			err := NewRunner().Run(context.Background(), Func{
				ID:         "a",
				ApplyFn:    func(context.Context) error { steps = append(steps, "apply"); return nil },
				CommitFn:   func(context.Context) error { steps = append(steps, "commit"); return commitErr },
				RollbackFn: func(context.Context) error { steps = append(steps, "rollback"); return c.rollbackErr },
			})

			if !errors.Is(err, commitErr) {
				t.Errorf("expected commit error, got %v", err)
			}

			if c.rollbackErr != nil && !errors.Is(err, c.rollbackErr) {
				t.Errorf("expected rollback error to be included, got %v", err)
			}

			if got := strings.Join(steps, ","); got != c.steps {
				t.Errorf("unexpected steps %q", got)
			}
		})
	}
}

func TestRunApplyFailureSkipsCommit(t *testing.T) {
	applyErr := errors.New("unknown record")
	committed := false

	err := NewRunner().Run(context.Background(), Func{
		ID:       "a",
		ApplyFn:  func(context.Context) error { return applyErr },
		CommitFn: func(context.Context) error { committed = true; return nil },
	})

	if !errors.Is(err, applyErr) {
		t.Errorf("expected apply error, got %v", err)
	}

	if committed {
		t.Errorf("commit must not run after a failed apply")
	}
}

func TestRunSerializesSameKey(t *testing.T) {
	runner := NewRunner()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)

	cmd := Func{
		ID: "same",
		CommitFn: func(context.Context) error {
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()

			return nil
		},
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.Run(context.Background(), cmd)
		}()
	}

	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected commands with the same key to be serialized, saw %d concurrent", maxSeen)
	}

	if len(runner.locks) != 0 {
		t.Errorf("expected all key locks to be released, got %d", len(runner.locks))
	}
}
