package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// AvailabilityCacheInterface は残席数キャッシュの抽象
//
// 読み手は DB を読む前に Version を取得し、その値を SetRemaining に渡す。
// 間に Invalidate が走っていれば書き込みは捨てられ、古い残席数が残らない
type AvailabilityCacheInterface interface {
	GetRemaining(ctx context.Context, activityID string) (int, error)
	Version(ctx context.Context, activityID string) (int64, error)
	SetRemaining(ctx context.Context, activityID string, remaining int, version int64, ttl time.Duration) error
	Invalidate(ctx context.Context, activityID string) error
}

// 世代番号は無効化のたびに増える。キャッシュ本体より長く保持する
const versionTTL = 24 * time.Hour

var (
	// 世代番号が読み取り時から変わっていなければ保存する
	setIfVersionScript = redis.NewScript(`
		local current = redis.call("GET", KEYS[2])
		if not current then
			current = "0"
		end
		if current ~= ARGV[1] then
			return 0
		end
		redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
		return 1
	`)
	invalidateScript = redis.NewScript(`
		redis.call("INCR", KEYS[2])
		redis.call("PEXPIRE", KEYS[2], ARGV[1])
		return redis.call("DEL", KEYS[1])
	`)
)

// AvailabilityCache は体験ごとの残席数をキャッシュする
// 正は常に posts.current_participants で、確定・キャンセルのコミット後に無効化される
type AvailabilityCache struct {
	client *redis.Client
}

func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

func (c *AvailabilityCache) GetRemaining(ctx context.Context, activityID string) (int, error) {
	val, err := c.client.Get(ctx, remainingKey(activityID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// Version は残席キャッシュの現在の世代番号を返す。未設定なら0
func (c *AvailabilityCache) Version(ctx context.Context, activityID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(activityID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("キャッシュ世代の取得に失敗: %w", err)
	}
	return v, nil
}

// SetRemaining は世代番号が version のままなら残席数を保存する
// 世代が進んでいた場合は何もせず nil を返す
func (c *AvailabilityCache) SetRemaining(ctx context.Context, activityID string, remaining int, version int64, ttl time.Duration) error {
	keys := []string{remainingKey(activityID), versionKey(activityID)}
	if err := setIfVersionScript.Run(ctx, c.client, keys, version, remaining, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は世代番号を進めてからキャッシュを削除する
func (c *AvailabilityCache) Invalidate(ctx context.Context, activityID string) error {
	keys := []string{remainingKey(activityID), versionKey(activityID)}
	if err := invalidateScript.Run(ctx, c.client, keys, versionTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// 2つのキーを同じスロットに置くためハッシュタグを使う
func remainingKey(activityID string) string {
	return "activity:remaining:{" + activityID + "}"
}

func versionKey(activityID string) string {
	return "activity:remaining:{" + activityID + "}:version"
}

var _ AvailabilityCacheInterface = (*AvailabilityCache)(nil)
