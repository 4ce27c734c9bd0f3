package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

type chatDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ChatID       string             `bson:"chat_id"`
	CreatedAt    time.Time          `bson:"created_at"`
	ActiveUsers  int                `bson:"active_users"`
	Participants []string           `bson:"participants"`
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    string             `bson:"sender"`
	Content   string             `bson:"content"`
	Timestamp time.Time          `bson:"timestamp"`
	ChatID    string             `bson:"chat_id"`
}

func (d messageDoc) toModel() models.Message {
	return models.Message{
		ID:        d.ID.Hex(),
		Sender:    d.Sender,
		Content:   d.Content,
		Timestamp: d.Timestamp.UTC(),
		RoomCode:  d.ChatID,
	}
}

// Store 是 MongoDB 文档存储实现，集合结构与线上已有数据保持一致。
type Store struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Connect 建立连接、检查连通性并确保索引存在。
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	s := &Store{client: client, chats: db.Collection(chatsCollection), messages: db.Collection(messagesCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	return err
}

func (s *Store) CreateRoom(ctx context.Context, code string) (*models.Room, error) {
	n, err := s.chats.CountDocuments(ctx, bson.M{"chat_id": code}, options.Count().SetLimit(1))
	if err != nil {
		return nil, store.Unavailable("create room", err)
	}
	if n > 0 {
		return nil, store.ErrDuplicateCode
	}
	doc := chatDoc{ChatID: code, CreatedAt: time.Now().UTC(), Participants: []string{}}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateCode
		}
		return nil, store.Unavailable("create room", err)
	}
	return &models.Room{Code: code, CreatedAt: doc.CreatedAt, Participants: []string{}}, nil
}

func (s *Store) FindRoom(ctx context.Context, code string) (*models.Room, error) {
	var doc chatDoc
	if err := s.chats.FindOne(ctx, bson.M{"chat_id": code}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("find room", err)
	}
	participants := doc.Participants
	if participants == nil {
		participants = []string{}
	}
	return &models.Room{
		Code:              doc.ChatID,
		CreatedAt:         doc.CreatedAt.UTC(),
		ActiveConnections: doc.ActiveUsers,
		Participants:      participants,
	}, nil
}

func (s *Store) AddParticipant(ctx context.Context, code, name string) error {
	res, err := s.chats.UpdateOne(ctx, bson.M{"chat_id": code}, bson.M{
		"$inc":      bson.M{"active_users": 1},
		"$addToSet": bson.M{"participants": name},
	})
	if err != nil {
		return store.Unavailable("add participant", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AdjustActiveConnections 使用聚合管道更新，$max 保证计数不低于 0。
func (s *Store) AdjustActiveConnections(ctx context.Context, code string, delta int) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "active_users", Value: bson.D{{Key: "$max", Value: bson.A{
			0,
			bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$active_users", 0}}}, delta}}},
		}}}}}}},
	}
	res, err := s.chats.UpdateOne(ctx, bson.M{"chat_id": code}, pipeline)
	if err != nil {
		return store.Unavailable("adjust active connections", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	n, err := s.chats.CountDocuments(ctx, bson.M{"chat_id": msg.RoomCode}, options.Count().SetLimit(1))
	if err != nil {
		return models.Message{}, store.Unavailable("append message", err)
	}
	if n == 0 {
		return models.Message{}, store.ErrNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	doc := messageDoc{
		ID:        primitive.NewObjectID(),
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp.UTC(),
		ChatID:    msg.RoomCode,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return models.Message{}, store.Unavailable("append message", err)
	}
	// BSON 日期只保留毫秒，返回值与读回的数据保持一致。
	doc.Timestamp = doc.Timestamp.Truncate(time.Millisecond)
	return doc.toModel(), nil
}

func (s *Store) ListMessages(ctx context.Context, code string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, bson.M{"chat_id": code}, opts)
	if err != nil {
		return nil, store.Unavailable("list messages", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, store.Unavailable("list messages", err)
	}
	out := make([]models.Message, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d.toModel()
	}
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
