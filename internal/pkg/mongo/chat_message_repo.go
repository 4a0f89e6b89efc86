package mongo

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChatMessageRepo interface {
	Insert(ctx context.Context, msg *ChatMessage) error
	Find(ctx context.Context, filter ChatMessageFilter, limit int64) ([]*ChatMessage, int, error)
	MarkRead(ctx context.Context, filter ReadFilter) (int64, error)
	LastChangeAt(ctx context.Context, filter ChatMessageFilter) (time.Time, error)
	FindScopes(ctx context.Context, ids []primitive.ObjectID) ([]ChatMessageFilter, error)
}

type chatMessageRepoImpl struct {
	col *mongo.Collection
}

func NewChatMessageRepo(db *mongo.Database) ChatMessageRepo {
	return &chatMessageRepoImpl{
		col: db.Collection(ChatMessageCollection),
	}
}

// EnsureChatMessageIndexes 创建快照查询所需索引
func EnsureChatMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ChatMessageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "scope_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "scope_kind", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// Insert 写入消息，_id 与 created_at 由此处分配
func (s *chatMessageRepoImpl) Insert(ctx context.Context, msg *ChatMessage) error {
	msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.col.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = id
	}
	return nil
}

// Find 按条件拉取最新的 limit 条消息
// 单条文档解码失败不会中断整个查询，返回被跳过的数量
func (s *chatMessageRepoImpl) Find(ctx context.Context, filter ChatMessageFilter, limit int64) ([]*ChatMessage, int, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := s.col.Find(ctx, toBson(filter), findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var (
		messages []*ChatMessage
		skipped  int
	)
	for cursor.Next(ctx) {
		var msg ChatMessage
		if err := cursor.Decode(&msg); err != nil {
			skipped++
			log.WarnContext(ctx, "chat message decode failed", "raw_id", cursor.Current.Lookup("_id").String(), "err", err)
			continue
		}
		messages = append(messages, &msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, skipped, err
	}
	return messages, skipped, nil
}

// MarkRead 批量标记已读，已读消息不会被重复修改
func (s *chatMessageRepoImpl) MarkRead(ctx context.Context, filter ReadFilter) (int64, error) {
	if len(filter.IDs) == 0 {
		return 0, nil
	}
	query := bson.M{
		"_id":  bson.M{"$in": filter.IDs},
		"read": bson.M{"$ne": true},
	}
	if filter.NotSenderRole != "" {
		query["sender_role"] = bson.M{"$ne": filter.NotSenderRole}
	}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}

	res, err := s.col.UpdateMany(ctx, query, bson.M{
		"$set": bson.M{"read": true, "read_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// LastChangeAt 最近一次写入或已读时间，供轮询兜底判断是否需要重新拉取快照
func (s *chatMessageRepoImpl) LastChangeAt(ctx context.Context, filter ChatMessageFilter) (time.Time, error) {
	var latest time.Time
	for _, field := range []string{"created_at", "read_at"} {
		var doc struct {
			CreatedAt time.Time  `bson:"created_at"`
			ReadAt    *time.Time `bson:"read_at"`
		}
		q := toBson(filter)
		q[field] = bson.M{"$exists": true}
		err := s.col.FindOne(ctx, q, options.FindOne().
			SetSort(bson.D{{Key: field, Value: -1}}).
			SetProjection(bson.M{"created_at": 1, "read_at": 1}),
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			return time.Time{}, err
		}
		if doc.CreatedAt.After(latest) {
			latest = doc.CreatedAt
		}
		if doc.ReadAt != nil && doc.ReadAt.After(latest) {
			latest = *doc.ReadAt
		}
	}
	return latest, nil
}

// FindScopes 消息所属的会话范围（去重）
func (s *chatMessageRepoImpl) FindScopes(ctx context.Context, ids []primitive.ObjectID) ([]ChatMessageFilter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().
		SetProjection(bson.M{"scope_id": 1, "scope_kind": 1, "customer_id": 1}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	seen := make(map[string]struct{})
	var scopes []ChatMessageFilter
	for cursor.Next(ctx) {
		var doc ChatMessage
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		if _, ok := seen[doc.ScopeID]; ok {
			continue
		}
		seen[doc.ScopeID] = struct{}{}
		scopes = append(scopes, ChatMessageFilter{ScopeID: doc.ScopeID, ScopeKind: doc.ScopeKind, CustomerID: doc.CustomerID})
	}
	return scopes, cursor.Err()
}

func toBson(filter ChatMessageFilter) bson.M {
	q := bson.M{}
	if filter.ScopeID != "" {
		q["scope_id"] = filter.ScopeID
	}
	if filter.ScopeKind != "" {
		q["scope_kind"] = filter.ScopeKind
	}
	if filter.CustomerID != "" {
		q["customer_id"] = filter.CustomerID
	}
	return q
}
