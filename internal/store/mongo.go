package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

const (
	roomsCollection     = "rooms"
	strokesCollection   = "strokes"
	shapesCollection    = "shapes"
	snapshotsCollection = "snapshots"
)

// MongoConfig MongoDB 연결 설정
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// MongoStore MongoDB 기반 저장소
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// NewMongoStore 연결, ping, 인덱스 생성
func NewMongoStore(ctx context.Context, cfg MongoConfig, log *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		log:    log.With(zap.String("component", "store"), zap.String("driver", DriverMongo)),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) Kind() string { return DriverMongo }

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		roomsCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		strokesCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "strokeId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		shapesCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "shapeId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		snapshotsCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func mongoErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return notFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

// =============================================================================
// Gateway
// =============================================================================

func (s *MongoStore) EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (model.Room, bool, error) {
	now := time.Now()
	res, err := s.db.Collection(roomsCollection).UpdateOne(ctx,
		bson.M{"roomId": roomID},
		bson.M{"$setOnInsert": bson.M{
			"roomId":    roomID,
			"settings":  defaults,
			"createdAt": now,
			"updatedAt": now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return model.Room{}, false, fmt.Errorf("ensure room %s: %w", roomID, err)
	}
	created := err == nil && res.UpsertedCount == 1

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return model.Room{}, false, err
	}
	if created {
		s.log.Info("room created", zap.String("roomId", roomID))
	}
	return room, created, nil
}

func (s *MongoStore) AppendStroke(ctx context.Context, stroke model.Stroke) error {
	if stroke.CreatedAt.IsZero() {
		stroke.CreatedAt = time.Now()
	}
	_, err := s.db.Collection(strokesCollection).InsertOne(ctx, stroke)
	return mongoErr(err, ErrNotFound)
}

func (s *MongoStore) AppendPointToStroke(ctx context.Context, roomID, strokeID string, point model.Point) error {
	res, err := s.db.Collection(strokesCollection).UpdateOne(ctx,
		bson.M{"roomId": roomID, "strokeId": strokeID},
		bson.M{"$push": bson.M{"points": point}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrStrokeNotFound
	}
	return nil
}

func (s *MongoStore) DeleteStroke(ctx context.Context, roomID, strokeID string) error {
	_, err := s.db.Collection(strokesCollection).DeleteOne(ctx, bson.M{"roomId": roomID, "strokeId": strokeID})
	return err
}

func (s *MongoStore) DeleteAllStrokes(ctx context.Context, roomID string) (int64, error) {
	res, err := s.db.Collection(strokesCollection).DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) ListStrokes(ctx context.Context, roomID string) ([]model.Stroke, error) {
	cur, err := s.db.Collection(strokesCollection).Find(ctx,
		bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	strokes := make([]model.Stroke, 0)
	if err := cur.All(ctx, &strokes); err != nil {
		return nil, err
	}
	return strokes, nil
}

// =============================================================================
// ShapeGateway
// =============================================================================

func (s *MongoStore) AppendShape(ctx context.Context, shape model.Shape) error {
	if shape.CreatedAt.IsZero() {
		shape.CreatedAt = time.Now()
	}
	_, err := s.db.Collection(shapesCollection).InsertOne(ctx, shape)
	return mongoErr(err, ErrNotFound)
}

func (s *MongoStore) UpdateShapeEnd(ctx context.Context, roomID, shapeID string, end model.Point) error {
	res, err := s.db.Collection(shapesCollection).UpdateOne(ctx,
		bson.M{"roomId": roomID, "shapeId": shapeID},
		bson.M{"$set": bson.M{"end": end}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrShapeNotFound
	}
	return nil
}

func (s *MongoStore) DeleteAllShapes(ctx context.Context, roomID string) (int64, error) {
	res, err := s.db.Collection(shapesCollection).DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) ListShapes(ctx context.Context, roomID string) ([]model.Shape, error) {
	cur, err := s.db.Collection(shapesCollection).Find(ctx,
		bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	shapes := make([]model.Shape, 0)
	if err := cur.All(ctx, &shapes); err != nil {
		return nil, err
	}
	return shapes, nil
}

// =============================================================================
// RoomStore
// =============================================================================

func (s *MongoStore) CreateRoom(ctx context.Context, room model.Room) (model.Room, error) {
	now := time.Now()
	room.CreatedAt, room.UpdatedAt = now, now
	if _, err := s.db.Collection(roomsCollection).InsertOne(ctx, room); err != nil {
		return model.Room{}, mongoErr(err, ErrNotFound)
	}
	return room, nil
}

func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (model.Room, error) {
	var room model.Room
	err := s.db.Collection(roomsCollection).FindOne(ctx, bson.M{"roomId": roomID}).Decode(&room)
	return room, mongoErr(err, ErrNotFound)
}

func (s *MongoStore) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(roomsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	rooms := make([]model.Room, 0)
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// =============================================================================
// SnapshotStore
// =============================================================================

func (s *MongoStore) CreateSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.Timestamp == 0 {
		snap.Timestamp = time.Now().UnixMilli()
	}
	snap.CreatedAt = time.Now()
	_, err := s.db.Collection(snapshotsCollection).InsertOne(ctx, snap)
	return mongoErr(err, ErrNotFound)
}

func (s *MongoStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]model.Snapshot, error) {
	cur, err := s.db.Collection(snapshotsCollection).Find(ctx,
		bson.M{"roomId": roomID},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "createdAt", Value: -1}}).
			SetLimit(int64(ClampLimit(limit))),
	)
	if err != nil {
		return nil, err
	}
	snaps := make([]model.Snapshot, 0)
	if err := cur.All(ctx, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func (s *MongoStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.Collection(snapshotsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&snap)
	return snap, mongoErr(err, ErrNotFound)
}

func (s *MongoStore) DeleteSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.Collection(snapshotsCollection).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&snap)
	if err != nil {
		return model.Snapshot{}, mongoErr(err, ErrNotFound)
	}
	return snap, nil
}

// =============================================================================
// Maintenance
// =============================================================================

func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		coll string
		dst  *int64
	}{
		{roomsCollection, &st.Rooms},
		{strokesCollection, &st.Strokes},
		{shapesCollection, &st.Shapes},
		{snapshotsCollection, &st.Snapshots},
	}
	for _, c := range counts {
		n, err := s.db.Collection(c.coll).CountDocuments(ctx, bson.M{})
		if err != nil {
			return st, err
		}
		*c.dst = n
	}
	return st, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
