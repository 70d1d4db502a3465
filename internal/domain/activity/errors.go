package activity

import "errors"

// Activity ドメインのエラー定義
var (
	ErrActivityNotFound      = errors.New("体験投稿が見つかりません")
	ErrOwnerIDRequired       = errors.New("投稿者IDは必須です")
	ErrTitleRequired         = errors.New("タイトルは必須です")
	ErrTitleTooLong          = errors.New("タイトルは200文字以内である必要があります")
	ErrInvalidCapacity       = errors.New("定員は1以上100以下である必要があります")
	ErrInvalidPrice          = errors.New("参加費は0以上である必要があります")
	ErrInvalidConfirmedCount = errors.New("確定人数は0以上である必要があります")
	ErrScheduleRequired      = errors.New("開催日時は必須です")
)
