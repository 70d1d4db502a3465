package application

import (
	"errors"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
)

// 業務上の拒否。インフラ障害とは区別してログ・メトリクスに記録する
var rejections = []error{
	activity.ErrActivityNotFound,
	reservation.ErrReservationNotFound,
	reservation.ErrInvalidTransition,
	reservation.ErrDuplicatePending,
	reservation.ErrInvalidPartySize,
	reservation.ErrPartySizeTooLarge,
	reservation.ErrMessageTooLong,
	booking.ErrNotBookable,
	booking.ErrSelfBooking,
	booking.ErrExpired,
	booking.ErrForbidden,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// outcomeOf はメトリクス用の結果ラベルを返す
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, booking.ErrCapacityExceeded):
		return "capacity_exceeded"
	case isRejection(err):
		return "rejected"
	default:
		return "error"
	}
}
