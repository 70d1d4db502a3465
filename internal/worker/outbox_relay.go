package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
	"github.com/farmlog/activity-reservation/internal/pkg/metrics"
)

// OutboxRelay は未送信のアウトボックスイベントをブローカーへ中継するワーカー
//
// 送信に成功してから送信済みにするため、MarkSent に失敗したイベントは次回再送される（at-least-once）
type OutboxRelay struct {
	repo      outbox.Repository
	publisher outbox.Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
}

// NewOutboxRelay はアウトボックス中継ワーカーを作成する。m は nil でもよい
func NewOutboxRelay(repo outbox.Repository, publisher outbox.Publisher, m *metrics.Metrics, interval time.Duration, batchSize int) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start は ctx がキャンセルされるまで定期的に中継する
func (w *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("アウトボックス中継開始",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("アウトボックス中継停止")
			return
		case <-ticker.C:
			if _, err := w.relay(ctx); err != nil {
				logger.Error("アウトボックスの取得に失敗", zap.Error(err))
			}
		}
	}
}

// relay は1バッチ分を送信し、送信済みにできた件数を返す
// 個々のイベントの失敗はログに残して次のイベントへ進む
func (w *OutboxRelay) relay(ctx context.Context) (int, error) {
	events, err := w.repo.FetchPending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	sent, failed := 0, 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if err := w.publisher.Publish(ctx, event); err != nil {
			failed++
			logger.Error("イベント送信に失敗",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			continue
		}
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			failed++
			logger.Error("送信済みへの更新に失敗",
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		sent++
		logger.Debug("イベント送信",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}

	w.metrics.RecordOutbox("sent", sent)
	w.metrics.RecordOutbox("failed", failed)
	return sent, nil
}
