package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/pkg/logger"
)

// StaleReservationCanceller は開催日時を過ぎた保留中予約をキャンセルするインターフェース
type StaleReservationCanceller interface {
	CancelStalePending(ctx context.Context) (int, error)
}

// StaleReservationCleaner は開催済み体験に残った保留中予約を定期的にキャンセルするワーカー
type StaleReservationCleaner struct {
	reservationService StaleReservationCanceller
	interval           time.Duration
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// NewStaleReservationCleaner は新しいクリーナーを作成
func NewStaleReservationCleaner(rs StaleReservationCanceller, interval time.Duration) *StaleReservationCleaner {
	return &StaleReservationCleaner{
		reservationService: rs,
		interval:           interval,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はクリーナーを開始。ctx のキャンセルか Stop で戻る
func (c *StaleReservationCleaner) Start(ctx context.Context) {
	logger.Info("保留中予約クリーナー開始", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("保留中予約クリーナー停止（コンテキストキャンセル）")
			return
		case <-c.stopCh:
			logger.Info("保留中予約クリーナー停止（シグナル受信）")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// Stop はクリーナーを停止し、Start の終了を待つ
func (c *StaleReservationCleaner) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *StaleReservationCleaner) cleanup(ctx context.Context) {
	log := logger.Get()
	log.Debug("保留中予約のクリーンアップ開始")

	count, err := c.reservationService.CancelStalePending(ctx)
	if err != nil {
		// 途中まで処理できた分は count に入っている
		log.Error("保留中予約のクリーンアップ失敗", zap.Int("cancelled", count), zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("開催済み体験の保留中予約をキャンセル", zap.Int("count", count))
	} else {
		log.Debug("対象の保留中予約なし")
	}
}
