package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo stores each trial as one document in a collection.
type Mongo struct {
	cfg    config.StorageConfig
	log    *logger.Logger
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo creates an unconnected MongoDB store.
func NewMongo(cfg config.StorageConfig, log *logger.Logger) *Mongo {
	if log == nil {
		log = logger.Discard()
	}

	return &Mongo{cfg: cfg, log: log}
}

// Connect dials the server, pings it and creates the indexes.
func (m *Mongo) Connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(m.cfg.URI).
		SetConnectTimeout(m.cfg.ConnectTimeout()).
		SetServerSelectionTimeout(m.cfg.ConnectTimeout()).
		SetSocketTimeout(m.cfg.SocketTimeout())

	if m.cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(m.cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout())
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo: ping: %w", err)
	}

	m.client = client
	m.coll = client.Database(m.cfg.Database).Collection(m.cfg.Collection)

	if _, err := m.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		m.log.Warn("failed to create indexes", "error", err)
	}

	m.log.Info("connected to mongodb", "database", m.cfg.Database, "collection", m.cfg.Collection)

	return nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}

	err := m.client.Disconnect(ctx)
	m.client, m.coll = nil, nil

	return err
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: pathEUCT, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: pathCountry, Value: 1}}},
		{Keys: bson.D{{Key: pathPhase, Value: 1}}},
		{Keys: bson.D{{Key: pathCondition, Value: 1}}},
		{Keys: bson.D{{Key: pathCreatedAt, Value: -1}}},
		{Keys: bson.D{
			{Key: pathStatus + ".member_state", Value: 1},
			{Key: pathStatus + "." + statusColumn, Value: 1},
		}},
	}
}

// Save inserts doc and falls back to updating the stored document when the
// key already exists. metadata.created_at is never overwritten.
func (m *Mongo) Save(ctx context.Context, doc Document) (Outcome, error) {
	if m.coll == nil {
		return "", ErrNotConnected
	}

	_, err := m.coll.InsertOne(ctx, toBSON(doc))
	if err == nil {
		return OutcomeInserted, nil
	}

	if !mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("mongo: insert %s: %w", doc.Key, err)
	}

	if _, err := m.coll.UpdateOne(ctx, keyFilter(doc.Key), updateDocument(doc), options.Update().SetUpsert(true)); err != nil {
		return "", fmt.Errorf("mongo: update %s: %w", doc.Key, err)
	}

	return OutcomeUpdated, nil
}

// BulkInsert performs one unordered InsertMany and classifies the write
// errors.
func (m *Mongo) BulkInsert(ctx context.Context, docs []Document) (BulkResult, error) {
	var result BulkResult

	if m.coll == nil {
		return result, ErrNotConnected
	}

	if len(docs) == 0 {
		return result, nil
	}

	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = toBSON(d)
	}

	res, err := m.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		result.Success = len(res.InsertedIDs)
		return result, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		result.Failed = len(docs)
		return result, fmt.Errorf("mongo: insert many: %w", err)
	}

	for _, we := range bulkErr.WriteErrors {
		if we.Code == 11000 {
			result.Duplicates++
		} else {
			result.Failed++
		}
	}

	result.Success = len(docs) - result.Duplicates - result.Failed

	return result, nil
}

// FindByKey returns the trial stored under key, or ErrNotFound.
func (m *Mongo) FindByKey(ctx context.Context, key string) (models.Record, error) {
	if m.coll == nil {
		return nil, ErrNotConnected
	}

	var raw bson.M

	err := m.coll.FindOne(ctx, keyFilter(key)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("mongo: find %s: %w", key, err)
	}

	return fromBSONDocument(raw), nil
}

// FindByCountry returns trials with a site country equal to country.
func (m *Mongo) FindByCountry(ctx context.Context, country string, limit int) ([]models.Record, error) {
	return m.find(ctx, bson.D{{Key: pathCountry, Value: country}}, int64(limitOrDefault(limit)))
}

// FindByCondition matches the medical condition case-insensitively.
func (m *Mongo) FindByCondition(ctx context.Context, pattern string, limit int) ([]models.Record, error) {
	return m.find(ctx, conditionFilter(pattern), int64(limitOrDefault(limit)))
}

// Each streams stored trials in natural order.
func (m *Mongo) Each(ctx context.Context, limit int, fn func(models.Record) error) error {
	if m.coll == nil {
		return ErrNotConnected
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("mongo: find: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return fmt.Errorf("mongo: decode: %w", err)
		}

		if err := fn(fromBSONDocument(raw)); err != nil {
			return err
		}
	}

	return cursor.Err()
}

func (m *Mongo) find(ctx context.Context, filter bson.D, limit int64) ([]models.Record, error) {
	if m.coll == nil {
		return nil, ErrNotConnected
	}

	cursor, err := m.coll.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}

	out := make([]models.Record, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromBSONDocument(r))
	}

	return out, nil
}

// Statistics counts trials, groups them by phase, lists the ten most
// frequent site countries and reads the database data size.
func (m *Mongo) Statistics(ctx context.Context) (Stats, error) {
	var stats Stats

	if m.coll == nil {
		return stats, ErrNotConnected
	}

	total, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return stats, fmt.Errorf("mongo: count: %w", err)
	}

	stats.TotalTrials = total

	if stats.TrialsByPhase, err = m.aggregate(ctx, phasePipeline()); err != nil {
		return stats, err
	}

	if stats.TopCountries, err = m.aggregate(ctx, countryPipeline(10)); err != nil {
		return stats, err
	}

	var dbStats struct {
		DataSize float64 `bson:"dataSize"`
	}

	if err := m.coll.Database().RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&dbStats); err != nil {
		m.log.Warn("failed to read dbStats", "error", err)
	} else {
		stats.DatabaseSizeBytes = int64(dbStats.DataSize)
	}

	return stats, nil
}

func (m *Mongo) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]GroupCount, error) {
	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: aggregate: %w", err)
	}

	var rows []struct {
		ID    any   `bson:"_id"`
		Count int64 `bson:"count"`
	}

	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: aggregate decode: %w", err)
	}

	out := make([]GroupCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, GroupCount{Key: leafText(r.ID), Count: r.Count})
	}

	return out, nil
}

func keyFilter(key string) bson.D {
	return bson.D{{Key: pathEUCT, Value: key}}
}

func conditionFilter(pattern string) bson.D {
	return bson.D{{Key: pathCondition, Value: primitive.Regex{Pattern: pattern, Options: "i"}}}
}

func phasePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + pathPhase},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func countryPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$locations.countries"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + pathCountry},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

// toBSON renders a document with native date metadata.
func toBSON(doc Document) bson.M {
	out := bson.M{}
	for k, v := range doc.Record {
		out[k] = v
	}

	out[metadata.Key] = metadataBSON(doc)

	return out
}

func metadataBSON(doc Document) bson.M {
	meta := bson.M{
		"created_at": doc.CreatedAt.UTC(),
		"updated_at": doc.UpdatedAt.UTC(),
	}

	if branch, ok := doc.Record[metadata.Key].(map[string]any); ok {
		for _, k := range []string{"source_file", "version", "source_hash"} {
			meta[k] = branch[k]
		}
	}

	return meta
}

// recordBranches are the top-level branches an update replaces. A branch
// missing from the new record is unset.
var recordBranches = []string{
	models.BranchHeader,
	models.BranchSummary,
	models.BranchTrialInfo,
	models.BranchTrialResults,
	models.BranchLocations,
}

// updateDocument sets every branch and every metadata field except
// created_at, which is written only on upsert, and unsets the branches the
// new record no longer has.
func updateDocument(doc Document) bson.D {
	set := bson.D{}

	for k, v := range doc.Record {
		if k == metadata.Key {
			continue
		}

		set = append(set, bson.E{Key: k, Value: v})
	}

	for k, v := range metadataBSON(doc) {
		if k == "created_at" {
			continue
		}

		set = append(set, bson.E{Key: metadata.Key + "." + k, Value: v})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: pathCreatedAt, Value: doc.CreatedAt.UTC()}}},
	}

	unset := bson.D{}

	for _, branch := range recordBranches {
		if _, ok := doc.Record[branch]; !ok {
			unset = append(unset, bson.E{Key: branch, Value: ""})
		}
	}

	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	return update
}

// fromBSONDocument converts a decoded document back into a record tree,
// dropping the ObjectID.
func fromBSONDocument(raw bson.M) models.Record {
	out, _ := fromBSON(raw).(map[string]any)
	if out == nil {
		out = models.Record{}
	}

	delete(out, "_id")

	return out
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSONMap(t)
	case map[string]any:
		return fromBSONMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}

		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}

		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int(t)
	case int64:
		return int(t)
	default:
		return v
	}
}

func fromBSONMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromBSON(v)
	}

	return out
}
