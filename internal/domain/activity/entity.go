package activity

import "time"

// Category は投稿カテゴリ。予約を受け付けるのは CategoryReservation のみ
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryQuestion    Category = "question"
	CategoryDiary       Category = "diary"
	CategoryKnowhow     Category = "knowhow"
	CategoryReservation Category = "reservation"
	CategoryFree        Category = "free"
)

// MaxCapacity は1件の体験投稿に設定できる定員の上限
const MaxCapacity = 100

// Activity は定員付きの体験投稿（予約対象）を表す
// ConfirmedCount を更新してよいのはキャパシティ台帳のみ
type Activity struct {
	ID             string
	OwnerID        string
	Title          string
	Category       Category
	Capacity       *int // nil は定員なし。0 とは区別する
	ConfirmedCount int
	ScheduledAt    *time.Time
	IsActive       bool
	Price          int
	Location       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewActivity は予約受付中の体験投稿を作成する
func NewActivity(ownerID, title string, capacity *int, scheduledAt *time.Time, price int, location string, now time.Time) *Activity {
	return &Activity{
		OwnerID:     ownerID,
		Title:       title,
		Category:    CategoryReservation,
		Capacity:    capacity,
		ScheduledAt: scheduledAt,
		IsActive:    true,
		Price:       price,
		Location:    location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate は体験投稿の検証を行う
func (a *Activity) Validate() error {
	if a.OwnerID == "" {
		return ErrOwnerIDRequired
	}
	if a.Title == "" {
		return ErrTitleRequired
	}
	if len([]rune(a.Title)) > 200 {
		return ErrTitleTooLong
	}
	if a.Capacity != nil && (*a.Capacity < 1 || *a.Capacity > MaxCapacity) {
		return ErrInvalidCapacity
	}
	if a.Price < 0 {
		return ErrInvalidPrice
	}
	if a.ConfirmedCount < 0 {
		return ErrInvalidConfirmedCount
	}
	return nil
}

// IsBookable は新規予約を受け付けるかを返す
func (a *Activity) IsBookable() bool {
	return a.IsActive && a.Category == CategoryReservation
}

// IsOwnedBy は userID が投稿者かを返す
func (a *Activity) IsOwnedBy(userID string) bool {
	return a.OwnerID == userID
}

// HasPassed は開催日時が now より前かを返す。開催日時が未設定なら false
func (a *Activity) HasPassed(now time.Time) bool {
	return a.ScheduledAt != nil && a.ScheduledAt.Before(now)
}

// CanAccommodate は partySize 人を追加で確定できるかを返す
func (a *Activity) CanAccommodate(partySize int) bool {
	if a.Capacity == nil {
		return true
	}
	return a.ConfirmedCount+partySize <= *a.Capacity
}

// RemainingSeats は残席数を返す。定員なしの場合 ok は false
func (a *Activity) RemainingSeats() (remaining int, ok bool) {
	if a.Capacity == nil {
		return 0, false
	}
	remaining = *a.Capacity - a.ConfirmedCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
