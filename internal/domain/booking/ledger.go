package booking

import (
	"context"

	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

// CapacityLedger は体験ごとの確定人数を管理する
//
// 確定人数の読み取り・判定・書き込みは1つの原子的な操作として行い、
// 並行した確定が定員を超えて成立しないことを保証する
type CapacityLedger interface {
	// TryConfirm は確定人数に partySize を加算する
	// 加算後に定員を超える場合は何も変更せず ErrCapacityExceeded を返す
	TryConfirm(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error

	// Release は確定人数から partySize を減算する。0 未満にはならない
	Release(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error
}
