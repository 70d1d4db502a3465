package activity

import "context"

// Repository は体験投稿の読み取り口
// 投稿の作成・編集は投稿カタログ側の責務で、予約コアは参照のみ行う
type Repository interface {
	// Create は体験投稿を作成する（投稿カタログ用）
	Create(ctx context.Context, a *Activity) error

	// GetByID はIDから体験投稿を取得する
	GetByID(ctx context.Context, id string) (*Activity, error)
}
