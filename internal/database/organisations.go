package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carefollow/callboard/internal/structs"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type OrganisationDatabase interface {
	CreateOrganisation(ctx context.Context, org *structs.Organisation) error
	GetOrganisation(ctx context.Context, id string) (*structs.Organisation, error)
	UpdateOrganisation(ctx context.Context, org *structs.Organisation) error
	ListOrganisations(ctx context.Context) ([]structs.Organisation, error)
}

type organisationDatabase struct {
	col *mongo.Collection
}

func NewOrganisationDatabase(ctx context.Context, db *mongo.Database) (OrganisationDatabase, error) {
	return &organisationDatabase{
		col: db.Collection("organisations"),
	}, nil
}

func (db *organisationDatabase) CreateOrganisation(ctx context.Context, org *structs.Organisation) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = time.Now()

	if _, err := db.col.InsertOne(ctx, org); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("organisation %q: %w", org.ID, ErrAlreadyExists)
		}

		return fmt.Errorf("failed to perform insert operation: %w", err)
	}

	return nil
}

func (db *organisationDatabase) GetOrganisation(ctx context.Context, id string) (*structs.Organisation, error) {
	res := db.col.FindOne(ctx, bson.M{"_id": id})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	var org structs.Organisation
	if err := res.Decode(&org); err != nil {
		return nil, fmt.Errorf("failed to decode organisation: %w", err)
	}

	return &org, nil
}

func (db *organisationDatabase) UpdateOrganisation(ctx context.Context, org *structs.Organisation) error {
	res, err := db.col.UpdateOne(ctx, bson.M{"_id": org.ID}, bson.M{
		"$set": bson.M{
			"name":          org.Name,
			"country":       org.Country,
			"language":      org.Language,
			"timezone":      org.Timezone,
			"inboundNumber": org.InboundNumber,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to perform update operation: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *organisationDatabase) ListOrganisations(ctx context.Context) ([]structs.Organisation, error) {
	res, err := db.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	result := make([]structs.Organisation, 0)
	if err := res.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode organisations: %w", err)
	}

	return result, nil
}

var _ OrganisationDatabase = (*organisationDatabase)(nil)
