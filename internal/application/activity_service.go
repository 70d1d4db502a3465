package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/identity"
	redisinfra "github.com/farmlog/activity-reservation/internal/infrastructure/redis"
	"github.com/farmlog/activity-reservation/internal/pkg/clock"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
)

const availabilityCacheTTL = 30 * time.Second

// ActivityService は体験投稿の参照と、予約受付用投稿の作成を扱う
type ActivityService struct {
	activities activity.Repository
	cache      redisinfra.AvailabilityCacheInterface
	clock      clock.Clock
}

// NewActivityService は ActivityService を作成する。cache は nil でもよい
func NewActivityService(activities activity.Repository, cache redisinfra.AvailabilityCacheInterface, clk clock.Clock) *ActivityService {
	return &ActivityService{activities: activities, cache: cache, clock: clk}
}

type PublishActivityInput struct {
	Title       string
	Capacity    *int
	ScheduledAt *time.Time
	Price       int
	Location    string
}

// Publish は予約を受け付ける体験投稿を作成する。EXPERT のみ
func (s *ActivityService) Publish(ctx context.Context, actor identity.Actor, input PublishActivityInput) (*activity.Activity, error) {
	if !actor.CanPublishActivity() {
		return nil, booking.ErrForbidden
	}
	if input.ScheduledAt == nil {
		return nil, activity.ErrScheduleRequired
	}
	a := activity.NewActivity(actor.UserID, input.Title, input.Capacity, input.ScheduledAt, input.Price, input.Location, s.clock.Now())
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.activities.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("体験投稿作成に失敗しました: %w", err)
	}
	logger.FromContext(ctx).Info("体験投稿を作成", zap.String("activity_id", a.ID), zap.String("owner_id", a.OwnerID))
	return a, nil
}

// Get は体験投稿を返す
func (s *ActivityService) Get(ctx context.Context, id string) (*activity.Activity, error) {
	return s.activities.GetByID(ctx, id)
}

// Availability は体験の残席状況
type Availability struct {
	ActivityID string
	Unlimited  bool
	Remaining  int
}

// Availability は残席数を返す。定員なしの体験は Unlimited
// 残席数は確定・キャンセルのコミット後に無効化されるキャッシュから読む
func (s *ActivityService) Availability(ctx context.Context, id string) (*Availability, error) {
	log := logger.FromContext(ctx)

	// DB を読む前の世代。読み取り中に無効化されていれば保存しない
	cacheable := false
	var version int64
	if s.cache != nil {
		remaining, err := s.cache.GetRemaining(ctx, id)
		if err == nil {
			return &Availability{ActivityID: id, Remaining: remaining}, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			log.Warn("残席キャッシュの取得に失敗", zap.String("activity_id", id), zap.Error(err))
		}
		if version, err = s.cache.Version(ctx, id); err == nil {
			cacheable = true
		} else {
			log.Warn("残席キャッシュの世代取得に失敗", zap.String("activity_id", id), zap.Error(err))
		}
	}

	a, err := s.activities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	remaining, limited := a.RemainingSeats()
	if !limited {
		return &Availability{ActivityID: id, Unlimited: true}, nil
	}

	if cacheable {
		if err := s.cache.SetRemaining(ctx, id, remaining, version, availabilityCacheTTL); err != nil {
			log.Warn("残席キャッシュの保存に失敗", zap.String("activity_id", id), zap.Error(err))
		}
	}
	return &Availability{ActivityID: id, Remaining: remaining}, nil
}
