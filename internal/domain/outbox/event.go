// Package outbox は予約ライフサイクルイベントのアウトボックスを定義する
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

// EventType はイベント種別。ブローカーのルーティングキーとしても使う
type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
)

// AggregateReservation は予約集約を表す集約種別
const AggregateReservation = "reservation"

// Event はアウトボックスに積まれる1件のイベント
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          EventType
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// ReservationPayload は予約イベントの本文
type ReservationPayload struct {
	ReservationID string             `json:"reservationId"`
	ActivityID    string             `json:"activityId"`
	RequesterID   string             `json:"requesterId"`
	PartySize     int                `json:"partySize"`
	Status        reservation.Status `json:"status"`
	CancelReason  *string            `json:"cancelReason,omitempty"`
	OccurredAt    time.Time          `json:"occurredAt"`
}

// NewReservationEvent は予約の現在の状態からイベントを作成する
func NewReservationEvent(t EventType, r *reservation.Reservation, at time.Time) (*Event, error) {
	payload, err := json.Marshal(ReservationPayload{
		ReservationID: r.ID,
		ActivityID:    r.ActivityID,
		RequesterID:   r.RequesterID,
		PartySize:     r.PartySize,
		Status:        r.Status,
		CancelReason:  r.CancelReason,
		OccurredAt:    at,
	})
	if err != nil {
		return nil, fmt.Errorf("イベント本文の生成エラー: %w", err)
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateType: AggregateReservation,
		AggregateID:   r.ID,
		Type:          t,
		Payload:       payload,
		CreatedAt:     at,
	}, nil
}

// Repository はアウトボックスの永続化を行う
type Repository interface {
	// Insert は業務データと同じトランザクションでイベントを積む
	Insert(ctx context.Context, tx transaction.Tx, event *Event) error

	// FetchPending は未送信のイベントを古い順に最大 limit 件返す
	FetchPending(ctx context.Context, limit int) ([]*Event, error)

	// MarkSent はイベントを送信済みにする
	MarkSent(ctx context.Context, id string) error
}

// Publisher はイベントを外部のブローカーへ送る
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}
