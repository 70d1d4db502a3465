package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
	"github.com/farmlog/activity-reservation/internal/pkg/metrics"
)

// CapacityLedger は posts.current_participants を条件付き UPDATE で増減する
//
// 判定と加算を1文で行うため、同じ体験への並行した確定は行ロックで直列化され、
// 後続の UPDATE は先行のコミット後の値で条件を再評価する
type CapacityLedger struct {
	metrics *metrics.Metrics
}

func NewCapacityLedger(m *metrics.Metrics) *CapacityLedger {
	return &CapacityLedger{metrics: m}
}

func (l *CapacityLedger) TryConfirm(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	result, err := sqlTx.ExecContext(ctx, `
		UPDATE posts
		SET current_participants = current_participants + $2, updated_at = NOW()
		WHERE id = $1
		  AND (max_participants IS NULL OR current_participants + $2 <= max_participants)`,
		activityID, partySize)
	if err != nil {
		if pqCode(err) == codeCheckViolation {
			l.metrics.RecordLedger("try_confirm", "rejected")
			return booking.ErrCapacityExceeded
		}
		if isInvalidID(err) {
			l.metrics.RecordLedger("try_confirm", "error")
			return activity.ErrActivityNotFound
		}
		l.metrics.RecordLedger("try_confirm", "error")
		return fmt.Errorf("確定人数の加算に失敗: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		l.metrics.RecordLedger("try_confirm", "applied")
		return nil
	}

	if err := ensureActivityExists(ctx, sqlTx, activityID); err != nil {
		l.metrics.RecordLedger("try_confirm", "error")
		return err
	}
	l.metrics.RecordLedger("try_confirm", "rejected")
	return booking.ErrCapacityExceeded
}

func (l *CapacityLedger) Release(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	result, err := sqlTx.ExecContext(ctx, `
		UPDATE posts
		SET current_participants = GREATEST(current_participants - $2, 0), updated_at = NOW()
		WHERE id = $1`,
		activityID, partySize)
	if err != nil {
		l.metrics.RecordLedger("release", "error")
		return fmt.Errorf("確定人数の減算に失敗: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		l.metrics.RecordLedger("release", "error")
		return activity.ErrActivityNotFound
	}
	l.metrics.RecordLedger("release", "applied")
	return nil
}

func ensureActivityExists(ctx context.Context, tx *sqlx.Tx, activityID string) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, activityID); err != nil {
		if isInvalidID(err) {
			return activity.ErrActivityNotFound
		}
		return fmt.Errorf("体験投稿の存在確認に失敗: %w", err)
	}
	if !exists {
		return activity.ErrActivityNotFound
	}
	return nil
}

var _ booking.CapacityLedger = (*CapacityLedger)(nil)
