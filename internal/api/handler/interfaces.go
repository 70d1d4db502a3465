package handler

import (
	"context"

	"github.com/farmlog/activity-reservation/internal/application"
	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/identity"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	Create(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	Confirm(ctx context.Context, reservationID, actingUserID string) (*reservation.Reservation, error)
	Cancel(ctx context.Context, reservationID, actingUserID string, cancelReason *string) (*reservation.Reservation, error)
	Get(ctx context.Context, reservationID, actingUserID string) (*reservation.Reservation, error)
	ListMine(ctx context.Context, userID string) ([]*reservation.Reservation, error)
	ListReceived(ctx context.Context, ownerID string) ([]*reservation.Reservation, error)
	ListAll(ctx context.Context, actor identity.Actor, limit, offset int) ([]*reservation.Reservation, error)
}

// ActivityServiceInterface は体験投稿サービスのインターフェース
type ActivityServiceInterface interface {
	Publish(ctx context.Context, actor identity.Actor, input application.PublishActivityInput) (*activity.Activity, error)
	Get(ctx context.Context, id string) (*activity.Activity, error)
	Availability(ctx context.Context, id string) (*application.Availability, error)
}

// HealthCheck は依存サービスの疎通確認
type HealthCheck func(ctx context.Context) error
