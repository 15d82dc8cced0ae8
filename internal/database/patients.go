package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PatientDatabase stores the patient roster of each organisation.
type PatientDatabase interface {
	ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error)
	GetPatient(ctx context.Context, orgID, id string) (*structs.Patient, error)
	CreatePatient(ctx context.Context, patient *structs.Patient) error
	UpdatePatient(ctx context.Context, patient *structs.Patient) error
	DeletePatient(ctx context.Context, orgID, id string) error

	// BulkUpsert stores patients in a single batch. Patients without an ID
	// are matched by phone number.
	BulkUpsert(ctx context.Context, orgID string, patients []structs.Patient) (int64, error)
}

type patientDatabase struct {
	col     *mongo.Collection
	country string
}

func NewPatientDatabase(ctx context.Context, db *mongo.Database, country string) (PatientDatabase, error) {
	pdb := &patientDatabase{
		col:     db.Collection("patients"),
		country: country,
	}

	if err := pdb.setup(ctx); err != nil {
		return nil, err
	}

	return pdb, nil
}

func (db *patientDatabase) setup(ctx context.Context) error {
	_, err := db.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organisationId", Value: 1},
				{Key: "customerName", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "organisationId", Value: 1},
				{Key: "phoneNumber", Value: 1},
			},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to setup indexes for patients collection: %w", err)
	}

	return nil
}

func (db *patientDatabase) prepare(patient *structs.Patient) error {
	if patient.OrganisationID == "" {
		return fmt.Errorf("patient must belong to an organisation")
	}

	number, err := NormalizeNumber(patient.PhoneNumber, db.country)
	if err != nil {
		return err
	}
	patient.PhoneNumber = number

	return nil
}

func (db *patientDatabase) ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error) {
	opts := options.Find().SetSort(bson.M{"customerName": 1})

	res, err := db.col.Find(ctx, bson.M{"organisationId": orgID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	result := make([]structs.Patient, 0)
	if err := res.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	return result, nil
}

func (db *patientDatabase) GetPatient(ctx context.Context, orgID, id string) (*structs.Patient, error) {
	res := db.col.FindOne(ctx, bson.M{"_id": id, "organisationId": orgID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	var p structs.Patient
	if err := res.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode patient: %w", err)
	}

	return &p, nil
}

func (db *patientDatabase) CreatePatient(ctx context.Context, patient *structs.Patient) error {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	if err := db.prepare(patient); err != nil {
		return err
	}

	if _, err := db.col.InsertOne(ctx, patient); err != nil {
		return fmt.Errorf("failed to perform insert operation: %w", err)
	}

	return nil
}

func (db *patientDatabase) UpdatePatient(ctx context.Context, patient *structs.Patient) error {
	if err := db.prepare(patient); err != nil {
		return err
	}

	res, err := db.col.ReplaceOne(ctx, bson.M{"_id": patient.ID, "organisationId": patient.OrganisationID}, patient)
	if err != nil {
		return fmt.Errorf("failed to perform replace operation: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *patientDatabase) DeletePatient(ctx context.Context, orgID, id string) error {
	res, err := db.col.DeleteOne(ctx, bson.M{"_id": id, "organisationId": orgID})
	if err != nil {
		return fmt.Errorf("failed to perform delete operation: %w", err)
	}

	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *patientDatabase) BulkUpsert(ctx context.Context, orgID string, patients []structs.Patient) (int64, error) {
	if len(patients) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(patients))

	for idx := range patients {
		p := patients[idx]
		p.OrganisationID = orgID

		if err := db.prepare(&p); err != nil {
			log.L(ctx).Warnf("skipping patient %q: %s", p.CustomerName, err)

			continue
		}

		var filter bson.M
		switch {
		case p.ID != "":
			filter = bson.M{"_id": p.ID, "organisationId": orgID}
		case p.PhoneNumber != "":
			filter = bson.M{"phoneNumber": p.PhoneNumber, "organisationId": orgID}
		default:
			filter = bson.M{"customerName": p.CustomerName, "organisationId": orgID}
		}

		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}

		set := bson.M{
			"organisationId": orgID,
			"customerName":   p.CustomerName,
		}
		if p.PhoneNumber != "" {
			set["phoneNumber"] = p.PhoneNumber
		}
		if p.DateOfBirth != "" {
			set["dateOfBirth"] = p.DateOfBirth
		}
		if len(p.Custom) > 0 {
			set["custom"] = p.Custom
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{"_id": id},
			}).
			SetUpsert(true))
	}

	if len(models) == 0 {
		return 0, nil
	}

	res, err := db.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to perform bulk write: %w", err)
	}

	return res.UpsertedCount + res.ModifiedCount, nil
}

var _ PatientDatabase = (*patientDatabase)(nil)
