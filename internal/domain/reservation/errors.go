package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound = errors.New("予約が見つかりません")
	ErrInvalidTransition   = errors.New("この状態の予約には操作できません")
	ErrDuplicatePending    = errors.New("この体験には既に保留中の予約があります")
	ErrInvalidPartySize    = errors.New("参加人数は1以上である必要があります")
	ErrPartySizeTooLarge   = errors.New("参加人数は100人以内である必要があります")
	ErrActivityIDRequired  = errors.New("体験投稿IDは必須です")
	ErrRequesterIDRequired = errors.New("申込者IDは必須です")
	ErrMessageTooLong      = errors.New("メッセージは1000文字以内である必要があります")
)
