package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/live"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/mutation"
	"github.com/carefollow/callboard/internal/rpc"
	"github.com/carefollow/callboard/internal/structs"
)

const CallServiceName = "callboard.v1.CallService"

type CallService struct {
	*config.Providers
}

func NewCallService(p *config.Providers) *CallService {
	return &CallService{
		Providers: p,
	}
}

// Handler returns the mount path and http.Handler of the service.
func (svc *CallService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	s := rpc.NewService(CallServiceName)

	rpc.Unary(s, "ListCalls", svc.ListCalls, opts...)
	rpc.ServerStream(s, "WatchCalls", svc.WatchCalls, opts...)
	rpc.Unary(s, "MarkViewed", svc.MarkViewed, opts...)
	rpc.Unary(s, "ScheduleCall", svc.ScheduleCall, opts...)
	rpc.Unary(s, "DeleteQueuedCall", svc.DeleteQueuedCall, opts...)
	rpc.Unary(s, "RetryCall", svc.RetryCall, opts...)
	rpc.Unary(s, "GetCallResult", svc.GetCallResult, opts...)

	return s.Handler()
}

// board prepares everything required to render the board of a request.
func (svc *CallService) board(ctx context.Context, msg *ListCallsRequest) (string, callview.Normalizer, string, error) {
	orgID, err := auth.Organisation(ctx, msg.OrganisationID)
	if err != nil {
		return "", callview.Normalizer{}, "", err
	}

	profile := callview.CallsProfile
	if msg.Profile != "" {
		p, ok := callview.ProfileByName(msg.Profile)
		if !ok {
			return "", callview.Normalizer{}, "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown profile %q", msg.Profile))
		}
		profile = p
	}

	settings := settingsFor(ctx, svc.Providers, orgID)

	lang := settings.Language
	if msg.Language != "" {
		lang = msg.Language
	}

	return orgID, newNormalizer(svc.Providers, profile, settings.Location), callview.NormalizeLanguage(lang), nil
}

func render(n callview.Normalizer, snap live.Snapshot, msg *ListCallsRequest, lang string) *ListCallsResponse {
	var groups []structs.DateGroup

	if msg.Filters == nil && msg.From == nil && msg.To == nil {
		groups = n.Build(snap.Board, nil, lang)
	} else {
		views := n.Views(snap.Board)
		groups = callview.Process(views, filtersFrom(msg.Filters, msg.From, msg.To, views), lang)
	}

	return &ListCallsResponse{
		Groups:   groups,
		Language: lang,
		Version:  snap.Version,
	}
}

// dateRange returns the store query for the requested date range or nil if
// the request is not restricted.
func dateRange(msg *ListCallsRequest) *database.SearchQuery {
	switch {
	case msg.From != nil && msg.To != nil:
		return new(database.SearchQuery).Between(*msg.From, *msg.To)
	case msg.From != nil:
		return new(database.SearchQuery).After(*msg.From)
	case msg.To != nil:
		return new(database.SearchQuery).Before(*msg.To)
	}

	return nil
}

// scoped restricts snap to the date range of msg. The live board holds
// every record of the organisation, so ranged boards are loaded from the
// store and share the roster of snap.
func (svc *CallService) scoped(ctx context.Context, orgID string, msg *ListCallsRequest, snap live.Snapshot) (live.Snapshot, error) {
	query := dateRange(msg)
	if query == nil {
		return snap, nil
	}

	board, err := svc.Calls.LoadBoard(ctx, orgID, query)
	if err != nil {
		return live.Snapshot{}, err
	}
	board.Roster = snap.Board.Roster

	snap.Board = board

	return snap, nil
}

func (svc *CallService) ListCalls(ctx context.Context, req *connect.Request[ListCallsRequest]) (*connect.Response[ListCallsResponse], error) {
	orgID, normalizer, lang, err := svc.board(ctx, req.Msg)
	if err != nil {
		return nil, err
	}

	var snap live.Snapshot

	if dateRange(req.Msg) == nil {
		snap, err = svc.Hub.Snapshot(ctx, orgID)
	} else {
		// ranged boards are not versioned
		snap.OrganisationID = orgID
		snap.Board.Roster, err = svc.Patients.ListPatients(ctx, orgID)
		if err == nil {
			snap, err = svc.scoped(ctx, orgID, req.Msg, snap)
		}
	}

	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(render(normalizer, snap, req.Msg, lang)), nil
}

// WatchCalls streams the board of an organisation. A new message is sent
// whenever a call record or the roster changes.
func (svc *CallService) WatchCalls(ctx context.Context, req *connect.Request[ListCallsRequest], stream *connect.ServerStream[ListCallsResponse]) error {
	return svc.watch(ctx, req.Msg, stream.Send)
}

// watch renders the board for every snapshot and passes it to send. Views
// whose status comes from the inbound liveness window change without a new
// snapshot, so the board is also rendered again once the first of them
// expires.
func (svc *CallService) watch(ctx context.Context, msg *ListCallsRequest, send func(*ListCallsResponse) error) error {
	orgID, normalizer, lang, err := svc.board(ctx, msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := svc.Hub.Subscribe(ctx, orgID)
	if err != nil {
		return toConnectError(err)
	}

	var (
		current live.Snapshot
		timer   *time.Timer
		expired <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case snap, ok := <-updates:
			if !ok {
				return nil
			}

			current, err = svc.scoped(ctx, orgID, msg, snap)
			if err != nil {
				return toConnectError(err)
			}

		case <-expired:
		}

		// the classifier depends on the wall clock, so every board is
		// rendered from scratch
		if err := send(render(normalizer, current, msg, lang)); err != nil {
			log.L(ctx).Infof("stopping board stream: %s", err)

			return nil
		}

		if timer != nil {
			timer.Stop()
			expired = nil
		}

		if wait, ok := normalizer.Classifier.NextChange(current.Board); ok {
			timer = time.NewTimer(wait)
			expired = timer.C
		}
	}
}

func (svc *CallService) MarkViewed(ctx context.Context, req *connect.Request[MarkViewedRequest]) (*connect.Response[MarkViewedResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	cmd := &markViewed{
		providers: svc.Providers,
		orgID:     orgID,
		kind:      req.Msg.Kind,
		id:        req.Msg.ID,
		viewed:    req.Msg.Viewed,
	}

	if err := svc.run(ctx, orgID, cmd); err != nil {
		return nil, err
	}

	return connect.NewResponse(&MarkViewedResponse{}), nil
}

func (svc *CallService) ScheduleCall(ctx context.Context, req *connect.Request[ScheduleCallRequest]) (*connect.Response[ScheduleCallResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	msg := *req.Msg
	settings := settingsFor(ctx, svc.Providers, orgID)

	if msg.PatientID != "" {
		patient, err := svc.Patients.GetPatient(ctx, orgID, msg.PatientID)
		if err != nil {
			return nil, toConnectError(fmt.Errorf("failed to load patient: %w", err))
		}

		if msg.PatientName == "" {
			msg.PatientName = patient.CustomerName
		}

		if msg.PhoneNumber == "" {
			msg.PhoneNumber = patient.PhoneNumber
		}
	}

	number, err := database.NormalizeNumber(msg.PhoneNumber, settings.Country)
	if err != nil || number == "" || number == database.Anonymous {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid phone number %q", msg.PhoneNumber))
	}
	msg.PhoneNumber = number

	if msg.PatientName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("patient name is required"))
	}

	cmd := newScheduleCall(svc.Providers, orgID, msg, settings)

	if err := svc.run(ctx, orgID, cmd); err != nil {
		return nil, err
	}

	return connect.NewResponse(&ScheduleCallResponse{CallID: cmd.callID}), nil
}

func (svc *CallService) DeleteQueuedCall(ctx context.Context, req *connect.Request[CallRef]) (*connect.Response[Empty], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	cmd := &deleteQueued{
		providers: svc.Providers,
		orgID:     orgID,
		id:        req.Msg.ID,
	}

	if err := svc.run(ctx, orgID, cmd); err != nil {
		return nil, err
	}

	return connect.NewResponse(&Empty{}), nil
}

func (svc *CallService) RetryCall(ctx context.Context, req *connect.Request[CallRef]) (*connect.Response[Empty], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	// only finished calls can be retried
	kind := structs.KindFailed
	if _, err := svc.Calls.Get(ctx, orgID, kind, req.Msg.ID); err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, toConnectError(err)
		}

		kind = structs.KindProcessed
		if _, err := svc.Calls.Get(ctx, orgID, kind, req.Msg.ID); err != nil {
			return nil, toConnectError(err)
		}
	}

	cmd := mutation.Func{
		ID: fmt.Sprintf("%s/%s/%s", orgID, kind, req.Msg.ID),
		CommitFn: func(ctx context.Context) error {
			return svc.Backend.RetryCall(ctx, orgID, req.Msg.ID)
		},
	}

	if err := svc.run(ctx, orgID, cmd); err != nil {
		return nil, err
	}

	return connect.NewResponse(&Empty{}), nil
}

func (svc *CallService) GetCallResult(ctx context.Context, req *connect.Request[CallRef]) (*connect.Response[CallResult], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	var record structs.RawCall

	conv, err := svc.Calls.GetConversation(ctx, orgID, req.Msg.ID)
	switch {
	case err == nil:
		record = conv

	case errors.Is(err, database.ErrNotFound):
		record, err = svc.Calls.Get(ctx, orgID, structs.KindFailed, req.Msg.ID)
		if err != nil {
			return nil, toConnectError(err)
		}

	default:
		return nil, toConnectError(err)
	}

	roster, err := svc.Patients.ListPatients(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	settings := settingsFor(ctx, svc.Providers, orgID)
	n := newNormalizer(svc.Providers, callview.CallsProfile, settings.Location)

	res := &CallResult{
		Call: n.Normalize(record, roster),
	}

	switch r := record.(type) {
	case *structs.Conversation:
		res.Transcript = r.Transcript
		res.ConversationHistory = r.ConversationHistory
		res.CompletedGoals = r.CompletedGoals
		res.Settings = &r.Settings
	case *structs.ProcessedCall:
		res.Transcript = r.Transcript
		res.ConversationHistory = r.ConversationHistory
	}

	return connect.NewResponse(res), nil
}

// run executes cmd and refreshes the board of orgID afterwards so other
// instances pick up the change.
func (svc *CallService) run(ctx context.Context, orgID string, cmd mutationCommand) error {
	return runCommand(ctx, svc.Providers, orgID, cmd)
}
