package booking

import "errors"

// 予約可否判定のエラー定義
var (
	ErrNotBookable      = errors.New("この投稿は予約を受け付けていません")
	ErrSelfBooking      = errors.New("自分の体験投稿には予約できません")
	ErrExpired          = errors.New("開催日時を過ぎているため予約できません")
	ErrCapacityExceeded = errors.New("定員を超えるため予約できません")
	ErrForbidden        = errors.New("この予約を操作する権限がありません")
)
