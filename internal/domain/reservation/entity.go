package reservation

import "time"

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// IsValid は既知の状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo は s から target への遷移が許されるかを返す
//
//	pending   -> confirmed | cancelled
//	confirmed -> cancelled
//	cancelled は終端
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusCancelled
	}
	return false
}

// Reservation は体験投稿に対する予約エンティティを表す
type Reservation struct {
	ID           string
	ActivityID   string
	RequesterID  string
	PartySize    int
	Status       Status
	Message      *string
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Activity は読み取り時に付与される体験投稿の概要。書き込みには使わない
	Activity *ActivitySummary
}

// ActivitySummary は予約一覧で申込者・投稿者に見せる体験投稿の概要
type ActivitySummary struct {
	Title          string
	ScheduledAt    *time.Time
	Capacity       *int
	ConfirmedCount int
	Location       string
}

// NewReservation は保留中の予約を作成する
func NewReservation(activityID, requesterID string, partySize int, message *string, now time.Time) *Reservation {
	return &Reservation{
		ActivityID:  activityID,
		RequesterID: requesterID,
		PartySize:   partySize,
		Status:      StatusPending,
		Message:     message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsPending は予約が保留中かを返す
func (r *Reservation) IsPending() bool {
	return r.Status == StatusPending
}

// IsConfirmed は予約が確定済みかを返す
func (r *Reservation) IsConfirmed() bool {
	return r.Status == StatusConfirmed
}

// Confirm は予約を確定する
func (r *Reservation) Confirm(now time.Time) error {
	if !r.Status.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidTransition
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = now
	return nil
}

// Cancel は予約をキャンセルする。reason は任意
func (r *Reservation) Cancel(reason *string, now time.Time) error {
	if !r.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	r.Status = StatusCancelled
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.ActivityID == "" {
		return ErrActivityIDRequired
	}
	if r.RequesterID == "" {
		return ErrRequesterIDRequired
	}
	if r.PartySize < 1 {
		return ErrInvalidPartySize
	}
	if r.PartySize > MaxPartySize {
		return ErrPartySizeTooLarge
	}
	if r.Message != nil && len([]rune(*r.Message)) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

const (
	// MaxMessageLength は申込メッセージの最大文字数
	MaxMessageLength = 1000
	// MaxPartySize は1件の予約の参加人数の上限。体験投稿の定員上限と揃える
	MaxPartySize = 100
)
