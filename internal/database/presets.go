package database

import (
	"context"
	"fmt"
	"time"

	"github.com/carefollow/callboard/internal/structs"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PresetDatabase stores objective presets and decision-tree presets.
type PresetDatabase interface {
	// ListPresets returns the presets of the organisation followed by the
	// default templates shared by all organisations.
	ListPresets(ctx context.Context, orgID string) ([]structs.Preset, error)
	SavePreset(ctx context.Context, preset *structs.Preset) error
	DeletePreset(ctx context.Context, orgID, id string) error

	ListTreePresets(ctx context.Context, orgID string) ([]structs.TreePreset, error)
	SaveTreePreset(ctx context.Context, preset *structs.TreePreset) error
	DeleteTreePreset(ctx context.Context, orgID, id string) error
}

type presetDatabase struct {
	presets   *mongo.Collection
	trees     *mongo.Collection
	templates *mongo.Collection
}

func NewPresetDatabase(ctx context.Context, db *mongo.Database) (PresetDatabase, error) {
	pdb := &presetDatabase{
		presets:   db.Collection("presets"),
		trees:     db.Collection("treePresets"),
		templates: db.Collection("defaultTemplates"),
	}

	if err := pdb.setup(ctx); err != nil {
		return nil, err
	}

	return pdb, nil
}

func (db *presetDatabase) setup(ctx context.Context) error {
	for _, col := range []*mongo.Collection{db.presets, db.trees} {
		if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{
				{Key: "organisationId", Value: 1},
				{Key: "title", Value: 1},
			},
		}); err != nil {
			return fmt.Errorf("failed to setup indexes for %s collection: %w", col.Name(), err)
		}
	}

	return nil
}

func (db *presetDatabase) ListPresets(ctx context.Context, orgID string) ([]structs.Preset, error) {
	opts := options.Find().SetSort(bson.M{"title": 1})

	res, err := db.presets.Find(ctx, bson.M{"organisationId": orgID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	result := make([]structs.Preset, 0)
	if err := res.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode presets: %w", err)
	}

	res, err = db.templates.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	var defaults []structs.Preset
	if err := res.All(ctx, &defaults); err != nil {
		return nil, fmt.Errorf("failed to decode default templates: %w", err)
	}

	for _, d := range defaults {
		d.Default = true
		result = append(result, d)
	}

	return result, nil
}

func (db *presetDatabase) SavePreset(ctx context.Context, preset *structs.Preset) error {
	if preset.OrganisationID == "" {
		return fmt.Errorf("preset must belong to an organisation")
	}

	if preset.ID == "" {
		preset.ID = uuid.NewString()
	}
	preset.UpdatedAt = time.Now()

	_, err := db.presets.ReplaceOne(ctx,
		bson.M{"_id": preset.ID, "organisationId": preset.OrganisationID},
		preset,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}

	return nil
}

func (db *presetDatabase) DeletePreset(ctx context.Context, orgID, id string) error {
	return deleteOne(ctx, db.presets, orgID, id)
}

func (db *presetDatabase) ListTreePresets(ctx context.Context, orgID string) ([]structs.TreePreset, error) {
	opts := options.Find().SetSort(bson.M{"title": 1})

	res, err := db.trees.Find(ctx, bson.M{"organisationId": orgID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to perform find operation: %w", err)
	}

	result := make([]structs.TreePreset, 0)
	if err := res.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode tree presets: %w", err)
	}

	return result, nil
}

func (db *presetDatabase) SaveTreePreset(ctx context.Context, preset *structs.TreePreset) error {
	if preset.OrganisationID == "" {
		return fmt.Errorf("tree preset must belong to an organisation")
	}

	if err := preset.Validate(); err != nil {
		return err
	}

	if preset.ID == "" {
		preset.ID = uuid.NewString()
	}
	preset.UpdatedAt = time.Now()

	_, err := db.trees.ReplaceOne(ctx,
		bson.M{"_id": preset.ID, "organisationId": preset.OrganisationID},
		preset,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save tree preset: %w", err)
	}

	return nil
}

func (db *presetDatabase) DeleteTreePreset(ctx context.Context, orgID, id string) error {
	return deleteOne(ctx, db.trees, orgID, id)
}

func deleteOne(ctx context.Context, col *mongo.Collection, orgID, id string) error {
	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "organisationId": orgID})
	if err != nil {
		return fmt.Errorf("failed to perform delete operation: %w", err)
	}

	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

var _ PresetDatabase = (*presetDatabase)(nil)
