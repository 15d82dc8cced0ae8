package config

import (
	"context"
	"fmt"
	"time"

	"github.com/carefollow/callboard/internal/backend"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/live"
	"github.com/carefollow/callboard/internal/mutation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Providers struct {
	Calls         database.CallDatabase
	Patients      database.PatientDatabase
	Presets       database.PresetDatabase
	Organisations database.OrganisationDatabase

	Backend   *backend.Client
	Hub       *live.Hub
	Mutations *mutation.Runner

	Mongo *mongo.Client
	// Redis is nil if no redis server is configured.
	Redis *redis.Client

	Location *time.Location
	Config   Config

	// Now returns the current time used to classify calls. Defaults to
	// time.Now.
	Now func() time.Time
}

func NewProviders(ctx context.Context, cfg Config) (*Providers, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// try to ping mongo
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := cli.Database(cfg.Database)

	calls, err := database.NewCallDatabase(ctx, db, cfg.Country, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare call db: %w", err)
	}

	patients, err := database.NewPatientDatabase(ctx, db, cfg.Country)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare patient db: %w", err)
	}

	presets, err := database.NewPresetDatabase(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare preset db: %w", err)
	}

	orgs, err := database.NewOrganisationDatabase(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare organisation db: %w", err)
	}

	var (
		rdb      *redis.Client
		notifier live.Notifier
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		notifier = live.NewRedisNotifier(rdb)
		logrus.Infof("using redis at %s for live updates", opts.Addr)
	} else {
		notifier = live.NewLocalNotifier()
	}

	p := &Providers{
		Calls:         calls,
		Patients:      patients,
		Presets:       presets,
		Organisations: orgs,
		Backend:       backend.New(cfg.BackendURL, cfg.BackendToken, time.Duration(cfg.BackendMaxElapsed)),
		Hub:           live.NewHub(calls, patients, notifier),
		Mutations:     mutation.NewRunner(),
		Mongo:         cli,
		Redis:         rdb,
		Location:      loc,
		Config:        cfg,
	}

	return p, nil
}

// Close releases the connections held by p.
func (p *Providers) Close(ctx context.Context) error {
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			logrus.Errorf("failed to close redis client: %s", err)
		}
	}

	return p.Mongo.Disconnect(ctx)
}
