package recycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore - основное документное хранилище
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	// транзакции требуют replica set
	transactions bool
	logger       *zap.Logger
}

func NewMongoStore(ctx context.Context, uri string, database string, transactions bool, logger *zap.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("config mongo.uri is not set")
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	err = client.Ping(cctx, nil)
	if err != nil {
		return nil, err
	}
	return &MongoStore{client, client.Database(database), transactions, logger}, nil
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoStore) Get(ctx context.Context, collection string, id string) (model.Document, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Document{}, fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
		}
		m.logger.Error("Mongo error", zap.String("service", "Get"), zap.String("collection", collection), zap.Error(err))
		return model.Document{}, err
	}
	return toDocument(raw), nil
}

func (m *MongoStore) Query(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	filter := bson.M{}
	for _, f := range q.Where {
		if f.Op != model.OpEq {
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		filter[f.Field] = f.Value
	}
	sort := bson.D{}
	for _, o := range q.OrderBy {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Field, Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "Query"), zap.String("collection", collection), zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []model.Document
	for cursor.Next(ctx) {
		var raw bson.M
		err := cursor.Decode(&raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, toDocument(raw))
	}
	return docs, cursor.Err()
}

func (m *MongoStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	doc := bson.M{"_id": id, "version": int64(0)}
	for k, v := range stripReserved(fields) {
		doc[k] = v
	}
	_, err := m.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "Create"), zap.String("collection", collection), zap.Error(err))
		return "", err
	}
	return id, nil
}

// Set - замена документа целиком, версия увеличивается
func (m *MongoStore) Set(ctx context.Context, collection string, id string, fields map[string]any) error {
	var version int64
	current, err := m.Get(ctx, collection, id)
	switch {
	case err == nil:
		version = current.Version + 1
	case !errors.Is(err, model.ErrNotFound):
		return err
	}
	doc := bson.M{"_id": id, "version": version}
	for k, v := range stripReserved(fields) {
		doc[k] = v
	}
	_, err = m.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "Set"), zap.String("collection", collection), zap.Error(err))
		return err
	}
	return nil
}

func (m *MongoStore) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	res, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, setVersioned(fields))
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "Update"), zap.String("collection", collection), zap.Error(err))
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
	}
	return nil
}

// UpdateIfVersion - запись только если версия документа не изменилась
func (m *MongoStore) UpdateIfVersion(ctx context.Context, collection string, id string, version int64, fields map[string]any) error {
	filter := bson.M{"_id": id, "version": version}
	if version == 0 {
		// null совпадает и с отсутствующим полем
		filter["version"] = bson.M{"$in": bson.A{int64(0), nil}}
	}
	res, err := m.db.Collection(collection).UpdateOne(ctx, filter, setVersioned(fields))
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "UpdateIfVersion"), zap.String("collection", collection), zap.Error(err))
		return err
	}
	if res.MatchedCount == 0 {
		_, err = m.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%s/%s: %w", collection, id, model.ErrConflict)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, collection string, id string) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		m.logger.Error("Mongo error", zap.String("service", "Delete"), zap.String("collection", collection), zap.Error(err))
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
	}
	return nil
}

// WithTx - транзакция сессии. Без replica set fn выполняется без транзакции
func (m *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx interf.DocumentStore) error) error {
	if !m.transactions {
		return fn(ctx, m)
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, m)
	})
	return err
}

func setVersioned(fields map[string]any) bson.M {
	return bson.M{
		"$set": bson.M(stripReserved(fields)),
		"$inc": bson.M{"version": 1},
	}
}

func toDocument(raw bson.M) model.Document {
	doc := model.Document{
		ID:      model.ToString(plain(raw["_id"])),
		Version: model.ToInt64(raw["version"]),
		Fields:  map[string]any{},
	}
	for k, v := range raw {
		if k == "_id" || k == "version" {
			continue
		}
		doc.Fields[k] = plain(v)
	}
	return doc
}

// plain - BSON значения в обычные типы Go
func plain(v any) any {
	switch val := v.(type) {
	case bson.M:
		return plainMap(val)
	case map[string]any:
		return plainMap(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.A:
		return plainSlice(val)
	case []any:
		return plainSlice(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil
		}
		return f
	case int32:
		return int64(val)
	}
	return v
}

func plainMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = plain(v)
	}
	return out
}

func plainSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = plain(v)
	}
	return out
}

func (m *MongoStore) Transactional() bool {
	return m.transactions
}
