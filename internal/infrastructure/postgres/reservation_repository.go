package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

type reservationRow struct {
	ID               string    `db:"id"`
	ActivityID       string    `db:"post_id"`
	RequesterID      string    `db:"user_id"`
	ParticipantCount int       `db:"participant_count"`
	Status           string    `db:"status"`
	Message          *string   `db:"message"`
	CancelReason     *string   `db:"cancel_reason"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`

	ActivityTitle           string        `db:"activity_title"`
	ActivityScheduledDate   *time.Time    `db:"activity_scheduled_date"`
	ActivityMaxParticipants sql.NullInt64 `db:"activity_max_participants"`
	ActivityParticipants    int           `db:"activity_current_participants"`
	ActivityLocation        string        `db:"activity_location"`
}

// 予約の読み取りは常に体験投稿の概要を伴う
const reservationSelect = `SELECT r.id, r.post_id, r.user_id, r.participant_count, r.status, r.message, r.cancel_reason,
		r.created_at, r.updated_at,
		p.title AS activity_title, p.scheduled_date AS activity_scheduled_date,
		p.max_participants AS activity_max_participants, p.current_participants AS activity_current_participants,
		p.location AS activity_location
	FROM reservations r
	JOIN posts p ON p.id = r.post_id`

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO reservations (post_id, user_id, participant_count, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := sqlTx.QueryRowContext(ctx, query,
		res.ActivityID, res.RequesterID, res.PartySize, string(res.Status), res.Message, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID); err != nil {
		switch pqCode(err) {
		case codeUniqueViolation:
			return reservation.ErrDuplicatePending
		case codeForeignKeyViolation, codeInvalidTextInput:
			return activity.ErrActivityNotFound
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	if err := r.db.GetContext(ctx, &row, reservationSelect+` WHERE r.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) HasPending(ctx context.Context, activityID, requesterID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM reservations WHERE post_id = $1 AND user_id = $2 AND status = 'pending')`
	if err := r.db.GetContext(ctx, &exists, query, activityID, requesterID); err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("保留中予約の確認に失敗: %w", err)
	}
	return exists, nil
}

func (r *ReservationRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*reservation.Reservation, error) {
	limit, offset = clampPage(limit, offset)
	return r.selectList(ctx, reservationSelect+`
		WHERE r.user_id = $1 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`, requesterID, limit, offset)
}

func (r *ReservationRepository) ListByActivityOwner(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	limit, offset = clampPage(limit, offset)
	return r.selectList(ctx, reservationSelect+`
		WHERE p.user_id = $1 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
}

func (r *ReservationRepository) ListAll(ctx context.Context, limit, offset int) ([]*reservation.Reservation, error) {
	limit, offset = clampPage(limit, offset)
	return r.selectList(ctx, reservationSelect+`
		ORDER BY r.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `UPDATE reservations SET status = $1, cancel_reason = $2, updated_at = $3 WHERE id = $4 AND status = $5`
	result, err := sqlTx.ExecContext(ctx, query, string(res.Status), res.CancelReason, res.UpdatedAt, res.ID, string(from))
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// 読み取り後に他の操作が先に状態を変えた
		return reservation.ErrInvalidTransition
	}
	return nil
}

func (r *ReservationRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*reservation.Reservation, error) {
	limit, _ = clampPage(limit, 0)
	return r.selectList(ctx, reservationSelect+`
		WHERE r.status = 'pending' AND p.scheduled_date IS NOT NULL AND p.scheduled_date < $1
		ORDER BY r.created_at LIMIT $2`, before, limit)
}

func (r *ReservationRepository) selectList(ctx context.Context, query string, args ...interface{}) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

func (row *reservationRow) toEntity() *reservation.Reservation {
	res := &reservation.Reservation{
		ID: row.ID, ActivityID: row.ActivityID, RequesterID: row.RequesterID,
		PartySize: row.ParticipantCount, Status: reservation.Status(row.Status),
		Message: row.Message, CancelReason: row.CancelReason,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		Activity: &reservation.ActivitySummary{
			Title:          row.ActivityTitle,
			ScheduledAt:    row.ActivityScheduledDate,
			ConfirmedCount: row.ActivityParticipants,
			Location:       row.ActivityLocation,
		},
	}
	if row.ActivityMaxParticipants.Valid {
		c := int(row.ActivityMaxParticipants.Int64)
		res.Activity.Capacity = &c
	}
	return res
}

var _ reservation.Repository = (*ReservationRepository)(nil)
