package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/hashicorp/go-multierror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// CallDatabase stores the call records received from the call backend.
type CallDatabase interface {
	UpsertQueued(ctx context.Context, call *structs.QueuedCall) error
	UpsertActive(ctx context.Context, call *structs.ActiveCall) error
	UpsertProcessed(ctx context.Context, call *structs.ProcessedCall) error
	UpsertConversation(ctx context.Context, call *structs.Conversation) error

	DeleteQueued(ctx context.Context, orgID, id string) error
	DeleteActive(ctx context.Context, orgID, id string) error

	// Get returns a single record of the given kind.
	Get(ctx context.Context, orgID string, kind structs.Kind, id string) (structs.RawCall, error)
	GetConversation(ctx context.Context, orgID, id string) (*structs.Conversation, error)

	// LoadBoard loads all call records of an organisation that match query.
	// The roster of the returned board is left empty.
	LoadBoard(ctx context.Context, orgID string, query *SearchQuery) (callview.Board, error)

	// SetViewed updates the viewed flag of a record and returns the
	// previous value.
	SetViewed(ctx context.Context, orgID string, kind structs.Kind, id string, viewed bool) (bool, error)

	Search(ctx context.Context, orgID string, kind structs.Kind, query *SearchQuery) ([]structs.RawCall, error)
	StreamSearch(ctx context.Context, orgID string, kind structs.Kind, query *SearchQuery) (<-chan structs.RawCall, <-chan error)

	// FindUnmatchedNumbers returns the distinct phone numbers of finished
	// calls that are not associated with a patient.
	FindUnmatchedNumbers(ctx context.Context, orgID string) ([]string, error)

	// UpdateUnmatchedNumber associates all finished calls from number that
	// do not have a patient yet with patientID.
	UpdateUnmatchedNumber(ctx context.Context, orgID, number, patientID string) (int64, error)
}

type callDatabase struct {
	collections map[structs.Kind]*mongo.Collection
	country     string
	location    *time.Location
}

// NewCallDatabase returns a CallDatabase backed by db. Phone numbers
// without an international prefix are parsed for country and schedule times
// are interpreted in loc.
func NewCallDatabase(ctx context.Context, db *mongo.Database, country string, loc *time.Location) (CallDatabase, error) {
	if loc == nil {
		loc = time.Local
	}

	cdb := &callDatabase{
		collections: map[structs.Kind]*mongo.Collection{
			structs.KindQueued:     db.Collection("queuedCalls"),
			structs.KindInProgress: db.Collection("activeCalls"),
			structs.KindFailed:     db.Collection("processedCalls"),
			structs.KindProcessed:  db.Collection("conversations"),
		},
		country:  country,
		location: loc,
	}

	if err := cdb.setup(ctx); err != nil {
		return nil, err
	}

	return cdb, nil
}

func (db *callDatabase) setup(ctx context.Context) error {
	for kind, col := range db.collections {
		models := []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "organisationId", Value: 1},
					{Key: "date", Value: -1},
				},
			},
		}

		switch kind {
		case structs.KindFailed, structs.KindProcessed:
			models = append(models, mongo.IndexModel{
				Keys: bson.D{
					{Key: "organisationId", Value: 1},
					{Key: "phoneNumber", Value: 1},
					{Key: "patientId", Value: 1},
				},
			})
		default:
			models = append(models, mongo.IndexModel{
				Keys: bson.D{
					{Key: "organisationId", Value: 1},
					{Key: "patient_id", Value: 1},
				},
				Options: options.Index().SetSparse(true),
			})
		}

		if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", col.Name(), err)
		}
	}

	return nil
}

func (db *callDatabase) collection(kind structs.Kind) (*mongo.Collection, error) {
	col, ok := db.collections[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}

	return col, nil
}

func (db *callDatabase) normalizeNumber(ctx context.Context, number string) string {
	normalized, err := NormalizeNumber(number, db.country)
	if err != nil {
		log.L(ctx).Warnf("keeping unparsable phone number %q: %s", number, err)

		return number
	}

	return normalized
}

func (db *callDatabase) coerce(v any) time.Time {
	t, _ := callview.CoerceTimeIn(v, db.location)

	return t
}

func (db *callDatabase) replace(ctx context.Context, kind structs.Kind, orgID, id string, doc any) error {
	if orgID == "" || id == "" {
		return fmt.Errorf("record must have an id and an organisation")
	}

	col, err := db.collection(kind)
	if err != nil {
		return err
	}

	_, err = col.ReplaceOne(ctx, bson.M{"_id": id, "organisationId": orgID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert %s record %q: %w", kind, id, err)
	}

	return nil
}

func (db *callDatabase) UpsertQueued(ctx context.Context, call *structs.QueuedCall) error {
	call.PhoneNumber = db.normalizeNumber(ctx, call.PhoneNumber)

	if t, ok := callview.ScheduledTime(call.ScheduledFor, db.location); ok {
		call.Date = t
	} else {
		call.Date = db.coerce(call.EnqueuedAt)
	}

	return db.replace(ctx, structs.KindQueued, call.OrganisationID, call.ID, call)
}

func (db *callDatabase) UpsertActive(ctx context.Context, call *structs.ActiveCall) error {
	call.PhoneNumber = db.normalizeNumber(ctx, call.PhoneNumber)
	call.Date = db.coerce(call.StartedAt)

	return db.replace(ctx, structs.KindInProgress, call.OrganisationID, call.ID, call)
}

func (db *callDatabase) UpsertProcessed(ctx context.Context, call *structs.ProcessedCall) error {
	call.PhoneNumber = db.normalizeNumber(ctx, call.PhoneNumber)
	call.Date = db.coerce(call.CreatedAt)

	return db.replace(ctx, structs.KindFailed, call.OrganisationID, call.ID, call)
}

func (db *callDatabase) UpsertConversation(ctx context.Context, call *structs.Conversation) error {
	call.PhoneNumber = db.normalizeNumber(ctx, call.PhoneNumber)
	call.Date = db.coerce(call.CreatedAt)

	return db.replace(ctx, structs.KindProcessed, call.OrganisationID, call.ID, call)
}

func (db *callDatabase) delete(ctx context.Context, kind structs.Kind, orgID, id string) error {
	col, err := db.collection(kind)
	if err != nil {
		return err
	}

	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "organisationId": orgID})
	if err != nil {
		return fmt.Errorf("failed to perform delete operation: %w", err)
	}

	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *callDatabase) DeleteQueued(ctx context.Context, orgID, id string) error {
	return db.delete(ctx, structs.KindQueued, orgID, id)
}

func (db *callDatabase) DeleteActive(ctx context.Context, orgID, id string) error {
	return db.delete(ctx, structs.KindInProgress, orgID, id)
}

// newRecord returns an empty record of the given kind to decode into.
func newRecord(kind structs.Kind) (structs.RawCall, error) {
	switch kind {
	case structs.KindQueued:
		return new(structs.QueuedCall), nil
	case structs.KindInProgress:
		return new(structs.ActiveCall), nil
	case structs.KindFailed:
		return new(structs.ProcessedCall), nil
	case structs.KindProcessed:
		return new(structs.Conversation), nil
	}

	return nil, fmt.Errorf("unsupported record kind %q", kind)
}

func (db *callDatabase) Get(ctx context.Context, orgID string, kind structs.Kind, id string) (structs.RawCall, error) {
	col, err := db.collection(kind)
	if err != nil {
		return nil, err
	}

	record, err := newRecord(kind)
	if err != nil {
		return nil, err
	}

	res := col.FindOne(ctx, bson.M{"_id": id, "organisationId": orgID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	if err := res.Decode(record); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", kind, err)
	}

	return record, nil
}

func (db *callDatabase) GetConversation(ctx context.Context, orgID, id string) (*structs.Conversation, error) {
	record, err := db.Get(ctx, orgID, structs.KindProcessed, id)
	if err != nil {
		return nil, err
	}

	return record.(*structs.Conversation), nil
}

func (db *callDatabase) SetViewed(ctx context.Context, orgID string, kind structs.Kind, id string, viewed bool) (bool, error) {
	if kind == structs.KindInProgress {
		return false, fmt.Errorf("calls in progress cannot be marked as viewed")
	}

	col, err := db.collection(kind)
	if err != nil {
		return false, err
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"viewed": 1})

	res := col.FindOneAndUpdate(ctx, bson.M{"_id": id, "organisationId": orgID}, bson.M{
		"$set": bson.M{"viewed": viewed},
	}, opts)

	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, ErrNotFound
		}

		return false, fmt.Errorf("failed to update viewed flag: %w", err)
	}

	var previous struct {
		Viewed bool `bson:"viewed"`
	}
	if err := res.Decode(&previous); err != nil {
		return false, fmt.Errorf("failed to decode previous document: %w", err)
	}

	return previous.Viewed, nil
}

func (db *callDatabase) Search(ctx context.Context, orgID string, kind structs.Kind, query *SearchQuery) ([]structs.RawCall, error) {
	results, errs := db.StreamSearch(ctx, orgID, kind, query)

	var (
		all    []structs.RawCall
		merr   = new(multierror.Error)
		closed int
	)

	for closed < 2 {
		select {
		case res, ok := <-results:
			if !ok {
				results = nil
				closed++

				continue
			}

			all = append(all, res)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				closed++

				continue
			}

			merr.Errors = append(merr.Errors, err)

		case <-ctx.Done():
			merr.Errors = append(merr.Errors, ctx.Err())

			return all, merr.ErrorOrNil()
		}
	}

	return all, merr.ErrorOrNil()
}

func (db *callDatabase) StreamSearch(ctx context.Context, orgID string, kind structs.Kind, query *SearchQuery) (<-chan structs.RawCall, <-chan error) {
	results := make(chan structs.RawCall, 1)
	errs := make(chan error, 1)

	col, err := db.collection(kind)
	if err != nil {
		errs <- err
		close(errs)
		close(results)

		return results, errs
	}

	filter := query.Build(orgID)
	log.L(ctx).Debugf("searching %s for %+v", col.Name(), filter)

	opts := options.Find().SetSort(bson.M{"date": -1})
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		errs <- fmt.Errorf("failed to retrieve documents: %w", err)
		close(errs)
		close(results)

		return results, errs
	}

	go func() {
		defer close(results)
		defer close(errs)
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			record, _ := newRecord(kind)

			if err := cursor.Decode(record); err != nil {
				select {
				case errs <- fmt.Errorf("failed to decode %s record: %w", kind, err):
				case <-ctx.Done():
					return
				}

				continue
			}

			select {
			case results <- record:
			case <-ctx.Done():
				return
			}
		}

		if err := cursor.Err(); err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		}
	}()

	return results, errs
}

func (db *callDatabase) LoadBoard(ctx context.Context, orgID string, query *SearchQuery) (callview.Board, error) {
	var (
		board      callview.Board
		eg, egCtx  = errgroup.WithContext(ctx)
		loadRecord = func(kind structs.Kind, fn func(structs.RawCall)) {
			eg.Go(func() error {
				records, err := db.Search(egCtx, orgID, kind, query)
				if err != nil {
					return fmt.Errorf("failed to load %s records: %w", kind, err)
				}

				for _, r := range records {
					fn(r)
				}

				return nil
			})
		}
	)

	// each callback only touches its own slice
	loadRecord(structs.KindQueued, func(r structs.RawCall) {
		board.Queued = append(board.Queued, r.(*structs.QueuedCall))
	})
	loadRecord(structs.KindInProgress, func(r structs.RawCall) {
		board.Active = append(board.Active, r.(*structs.ActiveCall))
	})
	loadRecord(structs.KindFailed, func(r structs.RawCall) {
		board.Processed = append(board.Processed, r.(*structs.ProcessedCall))
	})
	loadRecord(structs.KindProcessed, func(r structs.RawCall) {
		board.Conversations = append(board.Conversations, r.(*structs.Conversation))
	})

	if err := eg.Wait(); err != nil {
		return callview.Board{}, err
	}

	return board, nil
}

var finishedKinds = []structs.Kind{structs.KindFailed, structs.KindProcessed}

func (db *callDatabase) unmatchedFilter(orgID string) bson.M {
	return bson.M{
		"organisationId": orgID,
		"phoneNumber": bson.M{
			"$exists": true,
			"$nin":    bson.A{"", Anonymous},
		},
		"$or": bson.A{
			bson.M{"patientId": bson.M{"$exists": false}},
			bson.M{"patientId": ""},
		},
	}
}

func (db *callDatabase) FindUnmatchedNumbers(ctx context.Context, orgID string) ([]string, error) {
	seen := make(map[string]struct{})
	result := make([]string, 0)

	for _, kind := range finishedKinds {
		res, err := db.collections[kind].Distinct(ctx, "phoneNumber", db.unmatchedFilter(orgID))
		if err != nil {
			return nil, fmt.Errorf("failed to find distinct numbers in %s: %w", kind, err)
		}

		for _, r := range res {
			s, ok := r.(string)
			if !ok {
				continue
			}

			if _, ok := seen[s]; ok {
				continue
			}

			seen[s] = struct{}{}
			result = append(result, s)
		}
	}

	return result, nil
}

func (db *callDatabase) UpdateUnmatchedNumber(ctx context.Context, orgID, number, patientID string) (int64, error) {
	filter := db.unmatchedFilter(orgID)
	filter["phoneNumber"] = number

	var total int64
	merr := new(multierror.Error)

	for _, kind := range finishedKinds {
		res, err := db.collections[kind].UpdateMany(ctx, filter, bson.M{
			"$set": bson.M{"patientId": patientID},
		})
		if err != nil {
			merr.Errors = append(merr.Errors, fmt.Errorf("failed to update %s: %w", kind, err))

			continue
		}

		total += res.ModifiedCount
	}

	return total, merr.ErrorOrNil()
}

var _ CallDatabase = (*callDatabase)(nil)
