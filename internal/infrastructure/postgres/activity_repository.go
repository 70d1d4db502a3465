package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
)

type activityRow struct {
	ID                  string        `db:"id"`
	OwnerID             string        `db:"user_id"`
	Title               string        `db:"title"`
	Category            string        `db:"category"`
	Price               int           `db:"price"`
	Location            string        `db:"location"`
	MaxParticipants     sql.NullInt64 `db:"max_participants"`
	CurrentParticipants int           `db:"current_participants"`
	ScheduledDate       *time.Time    `db:"scheduled_date"`
	IsActive            bool          `db:"is_active"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at"`
}

const activityColumns = `id, user_id, title, category, price, location, max_participants,
	current_participants, scheduled_date, is_active, created_at, updated_at`

// ActivityRepository は posts テーブルを体験投稿として読み書きする
type ActivityRepository struct{ db *sqlx.DB }

func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, a *activity.Activity) error {
	var capacity sql.NullInt64
	if a.Capacity != nil {
		capacity = sql.NullInt64{Int64: int64(*a.Capacity), Valid: true}
	}
	query := `INSERT INTO posts (user_id, title, category, price, location, max_participants, current_participants, scheduled_date, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		a.OwnerID, a.Title, string(a.Category), a.Price, a.Location, capacity,
		a.ConfirmedCount, a.ScheduledAt, a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID); err != nil {
		return fmt.Errorf("体験投稿作成に失敗: %w", err)
	}
	return nil
}

func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*activity.Activity, error) {
	var row activityRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+activityColumns+` FROM posts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, activity.ErrActivityNotFound
		}
		return nil, fmt.Errorf("体験投稿取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (row *activityRow) toEntity() *activity.Activity {
	a := &activity.Activity{
		ID: row.ID, OwnerID: row.OwnerID, Title: row.Title,
		Category: activity.Category(row.Category), Price: row.Price, Location: row.Location,
		ConfirmedCount: row.CurrentParticipants, ScheduledAt: row.ScheduledDate,
		IsActive: row.IsActive, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if row.MaxParticipants.Valid {
		c := int(row.MaxParticipants.Int64)
		a.Capacity = &c
	}
	return a
}

var _ activity.Repository = (*ActivityRepository)(nil)
