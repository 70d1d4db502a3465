package reservation

import (
	"context"
	"time"

	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は保留中の予約を作成する（トランザクション必須）
	// 同一体験・同一申込者の保留中予約が既にある場合は ErrDuplicatePending を返す
	Create(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// HasPending は申込者が体験に保留中の予約を持っているかを返す
	HasPending(ctx context.Context, activityID, requesterID string) (bool, error)

	// ListByRequester は申込者の予約を新しい順に返す
	ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*Reservation, error)

	// ListByActivityOwner は ownerID が投稿した体験への予約を新しい順に返す
	ListByActivityOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Reservation, error)

	// ListAll は全予約を新しい順に返す（管理者用）
	ListAll(ctx context.Context, limit, offset int) ([]*Reservation, error)

	// UpdateStatus は予約の状態が from のままである場合に限り状態を書き換える（トランザクション必須）
	// 既に他の操作で状態が変わっていた場合は ErrInvalidTransition を返す
	UpdateStatus(ctx context.Context, tx transaction.Tx, reservation *Reservation, from Status) error

	// ListStalePending は開催日時が before より前の体験に残っている保留中予約を返す
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Reservation, error)
}
