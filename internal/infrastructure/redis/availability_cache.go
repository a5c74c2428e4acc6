package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCacheInterface は残席数キャッシュのインターフェース
type AvailabilityCacheInterface interface {
	GetRemaining(ctx context.Context, eventID string) (int, error)
	SetRemaining(ctx context.Context, eventID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID string) error
}

// AvailabilityCache はイベントの残席数キャッシュを管理する
// 予約の作成・キャンセル・昇格のたびに無効化される
type AvailabilityCache struct {
	client *redis.Client
}

var _ AvailabilityCacheInterface = (*AvailabilityCache)(nil)

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetRemaining はイベントの残席数をキャッシュから取得する
func (c *AvailabilityCache) GetRemaining(ctx context.Context, eventID string) (int, error) {
	key := c.remainingKey(eventID)
	val, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetRemaining はイベントの残席数をキャッシュに保存する
func (c *AvailabilityCache) SetRemaining(ctx context.Context, eventID string, count int, ttl time.Duration) error {
	key := c.remainingKey(eventID)
	err := c.client.Set(ctx, key, count, ttl).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベントのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	key := c.remainingKey(eventID)
	err := c.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) remainingKey(eventID string) string {
	return fmt.Sprintf("events:remaining:%s", eventID)
}
