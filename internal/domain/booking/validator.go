// Package booking は予約の作成・状態遷移の可否を判定する
package booking

import (
	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/pkg/clock"
)

// Validator は予約操作の事前条件を判定する
// 副作用は持たず、渡されたスナップショットのみを見る
type Validator struct {
	clock clock.Clock
}

// NewValidator は新しい Validator を作成する
func NewValidator(c clock.Clock) *Validator {
	return &Validator{clock: c}
}

// ValidateCreate は新規予約の可否を判定する
// hasPending は申込者が同じ体験に保留中の予約を持っているか
//
// 判定順:
//  1. 参加人数
//  2. 予約受付対象か（カテゴリ・公開状態）
//  3. 自己予約
//  4. 開催日時
//  5. 定員
//  6. 保留中の重複
func (v *Validator) ValidateCreate(a *activity.Activity, requesterID string, partySize int, hasPending bool) error {
	if a == nil {
		return activity.ErrActivityNotFound
	}
	if partySize < 1 {
		return reservation.ErrInvalidPartySize
	}
	if partySize > reservation.MaxPartySize {
		return reservation.ErrPartySizeTooLarge
	}
	if !a.IsBookable() {
		return ErrNotBookable
	}
	if a.IsOwnedBy(requesterID) {
		return ErrSelfBooking
	}
	if a.HasPassed(v.clock.Now()) {
		return ErrExpired
	}
	if !a.CanAccommodate(partySize) {
		return ErrCapacityExceeded
	}
	if hasPending {
		return reservation.ErrDuplicatePending
	}
	return nil
}

// ValidateTransition は actorID による予約の状態遷移の可否を判定する
// 確定は投稿者のみ、キャンセルは投稿者と申込者のどちらでも行える
// 定員の判定は行わない（確定時の定員はキャパシティ台帳が原子的に判定する）
func (v *Validator) ValidateTransition(r *reservation.Reservation, a *activity.Activity, actorID string, target reservation.Status) error {
	if r == nil {
		return reservation.ErrReservationNotFound
	}
	if a == nil {
		return activity.ErrActivityNotFound
	}
	if err := v.ValidateView(r, a, actorID); err != nil {
		return err
	}

	switch target {
	case reservation.StatusConfirmed:
		if !a.IsOwnedBy(actorID) {
			return ErrForbidden
		}
	case reservation.StatusCancelled:
	default:
		return reservation.ErrInvalidTransition
	}

	if !r.Status.CanTransitionTo(target) {
		return reservation.ErrInvalidTransition
	}
	return nil
}

// ValidateView は actorID が予約を閲覧できるかを判定する
// 閲覧できるのは申込者と体験の投稿者のみ
func (v *Validator) ValidateView(r *reservation.Reservation, a *activity.Activity, actorID string) error {
	if actorID == "" {
		return ErrForbidden
	}
	if r.RequesterID != actorID && !a.IsOwnedBy(actorID) {
		return ErrForbidden
	}
	return nil
}
