package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix はゲストセッションを格納するRedisハッシュのキー接頭辞。
const sessionKeyPrefix = "cartsync:session:"

// RedisSessionStore はRedisハッシュを使用したゲストセッションストア。
// 1セッション = 1ハッシュで保持し、書き込みのたびに有効期限を延長する。
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore はRedisSessionStoreを生成する。
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

// NewRedisClient は接続情報からRedisクライアントを生成する。
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Load はセッションの全データを返す。期限切れ・未作成の場合は空のmapを返す。
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return values, nil
}

// Set はセッションデータを書き込み、有効期限を延長する。
func (s *RedisSessionStore) Set(ctx context.Context, sessionID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	args := make([]any, 0, len(values)*2)
	for _, k := range sortedKeys(values) {
		args = append(args, k, values[k])
	}

	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, args...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はセッションデータを削除する。
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, sessionKey(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
