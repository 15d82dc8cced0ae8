// Package live keeps the call boards of organisations in memory and pushes
// a new snapshot to subscribers whenever a board changes.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CallLoader loads the call records of an organisation.
type CallLoader interface {
	LoadBoard(ctx context.Context, orgID string, query *database.SearchQuery) (callview.Board, error)
}

// RosterLoader loads the patient roster of an organisation.
type RosterLoader interface {
	ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error)
}

// Snapshot is an immutable view of an organisation's board. Receivers must
// not modify the board.
type Snapshot struct {
	OrganisationID string
	Version        uint64
	UpdatedAt      time.Time
	Board          callview.Board
}

type orgState struct {
	loaded   bool
	snapshot Snapshot
	subs     map[chan Snapshot]struct{}

	// started counts the loads begun for the board, published is the
	// number of the newest load that has been published.
	started   uint64
	published uint64
}

// Hub keeps one board per organisation.
type Hub struct {
	id       string
	calls    CallLoader
	roster   RosterLoader
	notifier Notifier

	inflight singleflight.Group

	mu   sync.Mutex
	orgs map[string]*orgState
}

func NewHub(calls CallLoader, roster RosterLoader, notifier Notifier) *Hub {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}

	return &Hub{
		id:       uuid.NewString(),
		calls:    calls,
		roster:   roster,
		notifier: notifier,
		orgs:     make(map[string]*orgState),
	}
}

// Start listens for change events of other instances until ctx is
// cancelled.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		defer func() {
			if x := recover(); x != nil {
				log.L(ctx).Errorf("live hub listener panicked: %v", x)
			}
		}()

		for {
			err := h.notifier.Listen(ctx, func(evt Event) {
				if evt.Origin == h.id {
					return
				}

				if _, err := h.refresh(ctx, evt.OrganisationID, true); err != nil {
					log.L(ctx).Errorf("failed to refresh board of %s: %s", evt.OrganisationID, err)
				}
			})

			if ctx.Err() != nil {
				return
			}

			log.L(ctx).Errorf("change listener stopped, restarting: %v", err)

			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (h *Hub) state(orgID string) *orgState {
	s, ok := h.orgs[orgID]
	if !ok {
		s = &orgState{
			subs: make(map[chan Snapshot]struct{}),
		}
		h.orgs[orgID] = s
	}

	return s
}

func (h *Hub) loadRoster(ctx context.Context, orgID string) ([]structs.Patient, error) {
	res, err, _ := h.inflight.Do(orgID, func() (any, error) {
		return h.roster.ListPatients(ctx, orgID)
	})
	if err != nil {
		return nil, err
	}

	return res.([]structs.Patient), nil
}

func (h *Hub) load(ctx context.Context, orgID string) (callview.Board, error) {
	var (
		board  callview.Board
		roster []structs.Patient
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		board, err = h.calls.LoadBoard(ctx, orgID, nil)
		if err != nil {
			return fmt.Errorf("failed to load calls: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		var err error
		roster, err = h.loadRoster(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load roster: %w", err)
		}

		return nil
	})

	if err := eg.Wait(); err != nil {
		return callview.Board{}, err
	}

	board.Roster = roster

	return board, nil
}

// refresh reloads the board. If onlyLoaded is set, boards that are not kept
// in memory are skipped. A load that finishes after a load started later
// has already been published is dropped, as it may miss newer records.
func (h *Hub) refresh(ctx context.Context, orgID string, onlyLoaded bool) (Snapshot, error) {
	h.mu.Lock()
	if onlyLoaded {
		if s, ok := h.orgs[orgID]; !ok || !s.loaded {
			h.mu.Unlock()

			return Snapshot{}, nil
		}
	}

	s := h.state(orgID)
	s.started++
	gen := s.started
	h.mu.Unlock()

	board, err := h.load(ctx, orgID)
	if err != nil {
		return Snapshot{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if gen < s.published {
		log.L(ctx).Debugf("dropping outdated board of %s", orgID)

		return s.snapshot, nil
	}

	s.published = gen
	s.loaded = true
	h.publishLocked(orgID, s, board)

	return s.snapshot, nil
}

func (h *Hub) publishLocked(orgID string, s *orgState, board callview.Board) {
	s.snapshot = Snapshot{
		OrganisationID: orgID,
		Version:        s.snapshot.Version + 1,
		UpdatedAt:      time.Now(),
		Board:          board,
	}

	for ch := range s.subs {
		send(ch, s.snapshot)
	}
}

// send delivers snap without blocking. A snapshot the subscriber did not
// consume yet is replaced.
func send(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns the current board of orgID, loading it if required.
func (h *Hub) Snapshot(ctx context.Context, orgID string) (Snapshot, error) {
	h.mu.Lock()
	s, ok := h.orgs[orgID]
	if ok && s.loaded {
		snap := s.snapshot
		h.mu.Unlock()

		return snap, nil
	}
	h.mu.Unlock()

	return h.refresh(ctx, orgID, false)
}

// Subscribe returns a channel that receives the current snapshot right away
// and a new one after every change. The channel is closed once ctx is
// cancelled.
func (h *Hub) Subscribe(ctx context.Context, orgID string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)

	h.mu.Lock()
	s := h.state(orgID)
	s.subs[ch] = struct{}{}
	loaded := s.loaded
	if loaded {
		ch <- s.snapshot
	}
	h.mu.Unlock()

	if !loaded {
		// refresh delivers the first snapshot to ch
		if _, err := h.refresh(ctx, orgID, false); err != nil {
			h.unsubscribe(orgID, s, ch)

			return nil, err
		}
	}

	go func() {
		<-ctx.Done()
		h.unsubscribe(orgID, s, ch)
	}()

	return ch, nil
}

func (h *Hub) unsubscribe(orgID string, s *orgState, ch chan Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(s.subs, ch)
	close(ch)

	// drop boards nobody is watching so they are reloaded on next use
	if len(s.subs) == 0 && h.orgs[orgID] == s {
		delete(h.orgs, orgID)
	}
}

// Invalidate reloads the board of orgID from the store, pushes it to all
// subscribers and notifies other instances.
func (h *Hub) Invalidate(ctx context.Context, orgID string) error {
	if _, err := h.refresh(ctx, orgID, true); err != nil {
		return err
	}

	if err := h.notifier.Publish(ctx, Event{OrganisationID: orgID, Origin: h.id}); err != nil {
		log.L(ctx).Warnf("failed to notify other instances about %s: %s", orgID, err)
	}

	return nil
}

// ErrRecordNotFound is returned by Patch functions if the record to update
// is not part of the board.
var ErrRecordNotFound = errors.New("record not part of the board")

// Patch modifies a copy of the in-memory board of orgID and pushes it to
// all subscribers. Boards that are not loaded are left untouched.
func (h *Hub) Patch(orgID string, fn func(b *callview.Board) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.orgs[orgID]
	if !ok || !s.loaded {
		return nil
	}

	board := s.snapshot.Board.Clone()
	if err := fn(&board); err != nil {
		return err
	}

	h.publishLocked(orgID, s, board)

	return nil
}
