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
	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
	redisinfra "github.com/farmlog/activity-reservation/internal/infrastructure/redis"
	"github.com/farmlog/activity-reservation/internal/pkg/clock"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
	"github.com/farmlog/activity-reservation/internal/pkg/metrics"
)

// StaleCancelReason は開催日時を過ぎた保留中予約を自動キャンセルする際の理由
const StaleCancelReason = "activity schedule has passed"

const (
	defaultListLimit = 100
	createLockTTL    = 10 * time.Second
	staleBatchSize   = 100
)

// ReservationService は予約のライフサイクルを扱う
//
// 状態の書き込みと確定人数の増減、アウトボックスへの記録は常に1つのトランザクションで行う
type ReservationService struct {
	txManager    transaction.Manager
	reservations reservation.Repository
	activities   activity.Repository
	ledger       booking.CapacityLedger
	outbox       outbox.Repository
	validator    *booking.Validator
	clock        clock.Clock

	lockManager redisinfra.LockManagerInterface
	cache       redisinfra.AvailabilityCacheInterface
	metrics     *metrics.Metrics
	listLimit   int
}

// ReservationOption は ReservationService の任意設定
type ReservationOption func(*ReservationService)

// WithMetrics は予約操作の結果をメトリクスに記録する
func WithMetrics(m *metrics.Metrics) ReservationOption {
	return func(s *ReservationService) { s.metrics = m }
}

// WithListLimit は一覧の最大件数を設定する
func WithListLimit(n int) ReservationOption {
	return func(s *ReservationService) {
		if n > 0 {
			s.listLimit = n
		}
	}
}

// NewReservationService は ReservationService を作成する
// lockManager と cache は nil でもよい
func NewReservationService(
	txm transaction.Manager,
	reservations reservation.Repository,
	activities activity.Repository,
	ledger booking.CapacityLedger,
	outboxRepo outbox.Repository,
	lockManager redisinfra.LockManagerInterface,
	cache redisinfra.AvailabilityCacheInterface,
	clk clock.Clock,
	opts ...ReservationOption,
) *ReservationService {
	s := &ReservationService{
		txManager:    txm,
		reservations: reservations,
		activities:   activities,
		ledger:       ledger,
		outbox:       outboxRepo,
		validator:    booking.NewValidator(clk),
		clock:        clk,
		lockManager:  lockManager,
		cache:        cache,
		listLimit:    defaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateReservationInput struct {
	ActivityID  string
	RequesterID string
	PartySize   int
	Message     *string
}

// Create は保留中の予約を作成する
func (s *ReservationService) Create(ctx context.Context, input CreateReservationInput) (res *reservation.Reservation, err error) {
	defer func() { s.record(ctx, "create", err) }()

	// 同一申込者の同一体験への申込を直列化する。取得できなくても続行し、
	// 重複の判定は HasPending と部分一意インデックスが行う
	if s.lockManager != nil {
		lock, lockErr := s.lockManager.AcquireLockWithRetry(ctx, createLockKey(input.ActivityID, input.RequesterID), createLockTTL, 3, 100*time.Millisecond)
		switch {
		case lockErr == nil:
			defer func() {
				// リクエストが切断されてもロックを残さない
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					logger.FromContext(ctx).Warn("ロック解放に失敗", zap.Error(err))
				}
			}()
		case errors.Is(lockErr, redisinfra.ErrLockNotAcquired):
			logger.FromContext(ctx).Debug("同一申込者の申込が処理中のためロックなしで続行します",
				zap.String("activity_id", input.ActivityID))
		default:
			logger.FromContext(ctx).Warn("ロックなしで続行します", zap.Error(lockErr))
		}
	}

	a, err := s.activities.GetByID(ctx, input.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("体験投稿取得に失敗: %w", err)
	}
	hasPending, err := s.reservations.HasPending(ctx, input.ActivityID, input.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("保留中予約の確認に失敗: %w", err)
	}
	if err := s.validator.ValidateCreate(a, input.RequesterID, input.PartySize, hasPending); err != nil {
		return nil, err
	}

	res = reservation.NewReservation(input.ActivityID, input.RequesterID, input.PartySize, input.Message, s.clock.Now())
	if err := res.Validate(); err != nil {
		return nil, err
	}

	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.reservations.Create(ctx, tx, res); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, outbox.EventReservationCreated, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Confirm は保留中の予約を確定する。投稿者のみ実行できる
// 定員を超える場合は予約を保留中のまま booking.ErrCapacityExceeded を返す
func (s *ReservationService) Confirm(ctx context.Context, reservationID, actingUserID string) (res *reservation.Reservation, err error) {
	defer func() { s.record(ctx, "confirm", err) }()

	current, a, err := s.load(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTransition(current, a, actingUserID, reservation.StatusConfirmed); err != nil {
		return nil, err
	}

	updated := *current
	// 読み取り時の体験概要は確定人数が古くなるため返さない
	updated.Activity = nil
	if err := updated.Confirm(s.clock.Now()); err != nil {
		return nil, err
	}

	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.reservations.UpdateStatus(ctx, tx, &updated, current.Status); err != nil {
			return err
		}
		if err := s.ledger.TryConfirm(ctx, tx, updated.ActivityID, updated.PartySize); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, outbox.EventReservationConfirmed, &updated)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, updated.ActivityID)
	return &updated, nil
}

// Cancel は予約をキャンセルする。申込者と投稿者が実行できる
// 確定済みの予約をキャンセルした場合は確定人数を戻す
func (s *ReservationService) Cancel(ctx context.Context, reservationID, actingUserID string, cancelReason *string) (res *reservation.Reservation, err error) {
	defer func() { s.record(ctx, "cancel", err) }()

	current, a, err := s.load(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTransition(current, a, actingUserID, reservation.StatusCancelled); err != nil {
		return nil, err
	}
	if cancelReason != nil && len([]rune(*cancelReason)) > reservation.MaxMessageLength {
		return nil, reservation.ErrMessageTooLong
	}

	return s.cancel(ctx, current, cancelReason)
}

// cancel は認可済みの予約を1トランザクションでキャンセルする
func (s *ReservationService) cancel(ctx context.Context, current *reservation.Reservation, cancelReason *string) (*reservation.Reservation, error) {
	prior := current.Status
	updated := *current
	updated.Activity = nil
	if err := updated.Cancel(cancelReason, s.clock.Now()); err != nil {
		return nil, err
	}

	err := transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.reservations.UpdateStatus(ctx, tx, &updated, prior); err != nil {
			return err
		}
		if prior == reservation.StatusConfirmed {
			if err := s.ledger.Release(ctx, tx, updated.ActivityID, updated.PartySize); err != nil {
				return err
			}
		}
		return s.appendEvent(ctx, tx, outbox.EventReservationCancelled, &updated)
	})
	if err != nil {
		return nil, err
	}

	if prior == reservation.StatusConfirmed {
		s.invalidateAvailability(ctx, updated.ActivityID)
	}
	return &updated, nil
}

// Get は予約を返す。申込者と投稿者以外は booking.ErrForbidden
func (s *ReservationService) Get(ctx context.Context, reservationID, actingUserID string) (*reservation.Reservation, error) {
	res, a, err := s.load(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateView(res, a, actingUserID); err != nil {
		return nil, err
	}
	return res, nil
}

// ListMine は userID が申し込んだ予約を新しい順に返す
func (s *ReservationService) ListMine(ctx context.Context, userID string) ([]*reservation.Reservation, error) {
	return s.reservations.ListByRequester(ctx, userID, s.listLimit, 0)
}

// ListReceived は ownerID が投稿した体験に届いた予約を新しい順に返す
func (s *ReservationService) ListReceived(ctx context.Context, ownerID string) ([]*reservation.Reservation, error) {
	return s.reservations.ListByActivityOwner(ctx, ownerID, s.listLimit, 0)
}

// ListAll は全予約を返す。管理者のみ
func (s *ReservationService) ListAll(ctx context.Context, actor identity.Actor, limit, offset int) ([]*reservation.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, booking.ErrForbidden
	}
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.reservations.ListAll(ctx, limit, offset)
}

// CancelStalePending は開催日時を過ぎた体験に残っている保留中予約をキャンセルし、件数を返す
// 保留中の予約は確定人数を持たないため台帳は変更しない
func (s *ReservationService) CancelStalePending(ctx context.Context) (int, error) {
	stale, err := s.reservations.ListStalePending(ctx, s.clock.Now(), staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("期限切れ保留中予約の取得に失敗: %w", err)
	}

	reason := StaleCancelReason
	cancelled := 0
	for _, res := range stale {
		if _, err := s.cancel(ctx, res, &reason); err != nil {
			// 取得後に投稿者が確定・キャンセルしていれば対象外
			if errors.Is(err, reservation.ErrInvalidTransition) {
				continue
			}
			return cancelled, fmt.Errorf("予約 %s の自動キャンセルに失敗: %w", res.ID, err)
		}
		cancelled++
		s.metrics.RecordReservation("expire", "success")
	}
	return cancelled, nil
}

func (s *ReservationService) load(ctx context.Context, reservationID string) (*reservation.Reservation, *activity.Activity, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	a, err := s.activities.GetByID(ctx, res.ActivityID)
	if err != nil {
		return nil, nil, fmt.Errorf("体験投稿取得に失敗: %w", err)
	}
	return res, a, nil
}

func (s *ReservationService) appendEvent(ctx context.Context, tx transaction.Tx, t outbox.EventType, res *reservation.Reservation) error {
	event, err := outbox.NewReservationEvent(t, res, s.clock.Now())
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, event)
}

// invalidateAvailability はコミット後に残席キャッシュを破棄する。失敗しても操作は成功扱い
func (s *ReservationService) invalidateAvailability(ctx context.Context, activityID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), activityID); err != nil {
		logger.FromContext(ctx).Warn("残席キャッシュの無効化に失敗",
			zap.String("activity_id", activityID), zap.Error(err))
	}
}

func (s *ReservationService) record(ctx context.Context, operation string, err error) {
	outcome := outcomeOf(err)
	s.metrics.RecordReservation(operation, outcome)

	log := logger.FromContext(ctx)
	switch outcome {
	case "success":
		log.Debug("予約操作成功", zap.String("operation", operation))
	case "capacity_exceeded":
		log.Info("定員超過により予約操作を拒否", zap.String("operation", operation))
	case "rejected":
		log.Debug("予約操作を拒否", zap.String("operation", operation), zap.Error(err))
	default:
		log.Error("予約操作に失敗", zap.String("operation", operation), zap.Error(err))
	}
}

func createLockKey(activityID, requesterID string) string {
	return "reservation:create:" + activityID + ":" + requesterID
}
