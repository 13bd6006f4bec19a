package dochook

import (
	"context"
	"time"

	"github.com/jkbrsn/vigil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a vigil.DocumentHook backed by a MongoDB deployment.
type Mongo struct {
	client   *mongo.Client
	database string
	logger   zerolog.Logger
}

// ConnectMongo connects to the deployment at uri. Queries naming no database use database.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = DefaultDatabase
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, vigil.ResourceError("mongo connect", err)
	}
	return &Mongo{
		client:   client,
		database: database,
		logger:   log.Logger.With().Str("component", vigil.ComponentDocuments).Logger(),
	}, nil
}

// SetLoggers takes the logger of the documents component.
func (m *Mongo) SetLoggers(l *vigil.Loggers) {
	m.logger = l.For(vigil.ComponentDocuments)
}

// Close disconnects from the deployment.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Exists counts at most one document matching the filter.
func (m *Mongo) Exists(ctx context.Context, q vigil.DocumentQuery) (bool, error) {
	database := q.Database
	if database == "" {
		database = m.database
	}
	coll := m.client.Database(database).Collection(q.Collection)

	n, err := coll.CountDocuments(ctx, bson.M(q.Filter), options.Count().SetLimit(1))
	if err != nil {
		return false, vigil.ResourceError("mongo count", err)
	}
	m.logger.Debug().
		Str("database", database).
		Str("collection", q.Collection).
		Int64("count", n).
		Msg("mongo query")
	return n > 0, nil
}
