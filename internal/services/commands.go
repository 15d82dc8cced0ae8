package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/carefollow/callboard/internal/backend"
	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/mutation"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/google/uuid"
)

type mutationCommand = mutation.Command

// runCommand runs cmd and refreshes the board of orgID once the change has
// been committed.
func runCommand(ctx context.Context, p *config.Providers, orgID string, cmd mutationCommand) error {
	if err := p.Mutations.Run(ctx, cmd); err != nil {
		return toConnectError(err)
	}

	if err := p.Hub.Invalidate(ctx, orgID); err != nil {
		log.L(ctx).Errorf("failed to refresh board of %s: %s", orgID, err)
	}

	return nil
}

// setViewed updates the viewed flag of a record and returns the previous
// value. Calls in progress do not have a viewed flag.
func setViewed(r structs.RawCall, viewed bool) (bool, bool) {
	switch c := r.(type) {
	case *structs.QueuedCall:
		prev := c.Viewed
		c.Viewed = viewed

		return prev, true
	case *structs.ProcessedCall:
		prev := c.Viewed
		c.Viewed = viewed

		return prev, true
	case *structs.Conversation:
		prev := c.Viewed
		c.Viewed = viewed

		return prev, true
	}

	return false, false
}

type markViewed struct {
	providers *config.Providers
	orgID     string
	kind      structs.Kind
	id        string
	viewed    bool

	patched       bool
	previousLocal bool
	stored        bool
	previousStore bool
}

func (cmd *markViewed) Key() string {
	return fmt.Sprintf("%s/%s/%s", cmd.orgID, cmd.kind, cmd.id)
}

func (cmd *markViewed) Apply(ctx context.Context) error {
	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		record := b.Find(cmd.kind, cmd.id)
		if record == nil {
			// not loaded yet, the store decides whether it exists
			return nil
		}

		prev, ok := setViewed(record, cmd.viewed)
		if !ok {
			return fmt.Errorf("%s records cannot be marked as viewed", cmd.kind)
		}

		cmd.patched = true
		cmd.previousLocal = prev

		return nil
	})
}

func (cmd *markViewed) Commit(ctx context.Context) error {
	prev, err := cmd.providers.Calls.SetViewed(ctx, cmd.orgID, cmd.kind, cmd.id, cmd.viewed)
	if err != nil {
		return err
	}

	cmd.stored = true
	cmd.previousStore = prev

	return cmd.providers.Backend.MarkViewed(ctx, cmd.orgID, cmd.id, cmd.viewed)
}

func (cmd *markViewed) Rollback(ctx context.Context) error {
	if cmd.stored {
		if _, err := cmd.providers.Calls.SetViewed(ctx, cmd.orgID, cmd.kind, cmd.id, cmd.previousStore); err != nil {
			return err
		}
	}

	if !cmd.patched {
		return nil
	}

	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		if record := b.Find(cmd.kind, cmd.id); record != nil {
			setViewed(record, cmd.previousLocal)
		}

		return nil
	})
}

type deleteQueued struct {
	providers *config.Providers
	orgID     string
	id        string

	removed *structs.QueuedCall
	index   int
}

func (cmd *deleteQueued) Key() string {
	return fmt.Sprintf("%s/%s/%s", cmd.orgID, structs.KindQueued, cmd.id)
}

func (cmd *deleteQueued) Apply(ctx context.Context) error {
	if _, err := cmd.providers.Calls.Get(ctx, cmd.orgID, structs.KindQueued, cmd.id); err != nil {
		return err
	}

	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		idx := slices.IndexFunc(b.Queued, func(c *structs.QueuedCall) bool {
			return c.ID == cmd.id
		})

		if idx < 0 {
			return nil
		}

		cmd.removed = b.Queued[idx]
		cmd.index = idx
		b.Queued = slices.Delete(b.Queued, idx, idx+1)

		return nil
	})
}

func (cmd *deleteQueued) Commit(ctx context.Context) error {
	if err := cmd.providers.Backend.DeleteQueuedCall(ctx, cmd.orgID, cmd.id); err != nil {
		return err
	}

	// the backend may already have reported the deletion
	if err := cmd.providers.Calls.DeleteQueued(ctx, cmd.orgID, cmd.id); err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	return nil
}

func (cmd *deleteQueued) Rollback(ctx context.Context) error {
	if cmd.removed == nil {
		return nil
	}

	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		if b.Find(structs.KindQueued, cmd.id) != nil {
			return nil
		}

		idx := min(cmd.index, len(b.Queued))
		b.Queued = slices.Insert(b.Queued, idx, cmd.removed)

		return nil
	})
}

type scheduleCall struct {
	providers *config.Providers
	orgID     string
	request   backend.ScheduleRequest
	pending   *structs.QueuedCall

	callID string
}

func newScheduleCall(p *config.Providers, orgID string, msg ScheduleCallRequest, settings orgSettings) *scheduleCall {
	now := time.Now().In(settings.Location)

	date, clock := msg.Date, msg.Time
	if date == "" {
		date = now.Format("2006-01-02")
	}
	if clock == "" {
		if msg.Date == "" {
			clock = now.Format("15:04")
		} else {
			clock = "09:00"
		}
	}

	req := backend.ScheduleRequest{
		OrganisationID: orgID,
		PatientID:      msg.PatientID,
		PatientName:    msg.PatientName,
		PhoneNumber:    msg.PhoneNumber,
		Objectives:     msg.Objectives,
		TemplateTitle:  msg.TemplateTitle,
		Date:           date,
		Time:           clock,
		TwilioNumber:   p.Config.TwilioNumber,
	}

	return &scheduleCall{
		providers: p,
		orgID:     orgID,
		request:   req,
		pending: &structs.QueuedCall{
			ID:             uuid.NewString(),
			OrganisationID: orgID,
			ExperienceArgs: structs.ExperienceArgs{
				PatientName:   msg.PatientName,
				Objectives:    msg.Objectives,
				TemplateTitle: msg.TemplateTitle,
			},
			ScheduledFor: structs.Schedule{Date: date, Time: clock},
			EnqueuedAt:   now,
			PatientID:    msg.PatientID,
			PhoneNumber:  msg.PhoneNumber,
		},
	}
}

func (cmd *scheduleCall) Key() string {
	return fmt.Sprintf("%s/%s/%s", cmd.orgID, structs.KindQueued, cmd.pending.ID)
}

func (cmd *scheduleCall) Apply(ctx context.Context) error {
	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		pending := *cmd.pending
		b.Queued = append(b.Queued, &pending)

		return nil
	})
}

func (cmd *scheduleCall) Commit(ctx context.Context) error {
	res, err := cmd.providers.Backend.ScheduleCall(ctx, cmd.request)
	if err != nil {
		return err
	}

	call := *cmd.pending
	if res.CallID != "" {
		call.ID = res.CallID
	}
	cmd.callID = call.ID

	if err := cmd.providers.Calls.UpsertQueued(ctx, &call); err != nil {
		// the call is scheduled, the ingest webhook will store it
		log.L(ctx).Errorf("failed to store scheduled call %s: %s", call.ID, err)
	}

	return nil
}

func (cmd *scheduleCall) Rollback(ctx context.Context) error {
	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		b.Queued = slices.DeleteFunc(b.Queued, func(c *structs.QueuedCall) bool {
			return c.ID == cmd.pending.ID
		})

		return nil
	})
}

type deletePatient struct {
	providers *config.Providers
	orgID     string
	id        string

	removed *structs.Patient
}

func (cmd *deletePatient) Key() string {
	return fmt.Sprintf("%s/patient/%s", cmd.orgID, cmd.id)
}

func (cmd *deletePatient) Apply(ctx context.Context) error {
	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		idx := slices.IndexFunc(b.Roster, func(p structs.Patient) bool {
			return p.ID == cmd.id
		})

		if idx < 0 {
			return nil
		}

		removed := b.Roster[idx]
		cmd.removed = &removed
		b.Roster = slices.Delete(b.Roster, idx, idx+1)

		return nil
	})
}

func (cmd *deletePatient) Commit(ctx context.Context) error {
	return cmd.providers.Patients.DeletePatient(ctx, cmd.orgID, cmd.id)
}

func (cmd *deletePatient) Rollback(ctx context.Context) error {
	if cmd.removed == nil {
		return nil
	}

	return cmd.providers.Hub.Patch(cmd.orgID, func(b *callview.Board) error {
		if callview.ResolvePatient(cmd.id, b.Roster) != nil {
			return nil
		}

		b.Roster = append(b.Roster, *cmd.removed)

		return nil
	})
}

var (
	_ mutation.Command = (*markViewed)(nil)
	_ mutation.Command = (*deleteQueued)(nil)
	_ mutation.Command = (*scheduleCall)(nil)
	_ mutation.Command = (*deletePatient)(nil)
)
