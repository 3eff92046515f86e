package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	xerrors "DexAI-Chain/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStoreConfig 描述 Redis 会话存储的连接参数。
type RedisSessionStoreConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix 为会话键的前缀，默认 dexai:bridge:session:。
	Prefix string
	// TTL 为会话键的过期时间，默认 24 小时。
	TTL time.Duration
}

// RedisSessionStore 使用 Redis 保存桥接会话，供多实例部署共享会话状态。
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore 创建 Redis 会话存储并验证连通性。
func NewRedisSessionStore(cfg RedisSessionStoreConfig) (*RedisSessionStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dexai:bridge:session:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}, nil
}

// Load 实现 SessionStore 接口，键不存在时返回全新的初始会话。
func (s *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewSession(id), nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话失败")
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话失败")
	}
	return &session, nil
}

// Save 实现 SessionStore 接口。
func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话不能为空")
	}
	session.UpdatedAt = time.Now()
	raw, err := json.Marshal(session)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化会话失败")
	}
	if err := s.client.Set(ctx, s.prefix+session.ID, raw, s.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存会话失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
