package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
)

type outboxRow struct {
	ID            string    `db:"id"`
	AggregateType string    `db:"aggregate_type"`
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	CreatedAt     time.Time `db:"created_at"`
}

// OutboxRepository は outbox_events テーブルを扱う
type OutboxRepository struct{ db *sqlx.DB }

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`
	if _, err := sqlTx.ExecContext(ctx, query,
		e.ID, e.AggregateType, e.AggregateID, string(e.Type), []byte(e.Payload), e.CreatedAt,
	); err != nil {
		return fmt.Errorf("アウトボックスへの追加に失敗: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	limit, _ = clampPage(limit, 0)
	var rows []outboxRow
	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_events WHERE status = 'pending' ORDER BY created_at LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("未送信イベント取得に失敗: %w", err)
	}
	events := make([]*outbox.Event, len(rows))
	for i, row := range rows {
		events[i] = &outbox.Event{
			ID: row.ID, AggregateType: row.AggregateType, AggregateID: row.AggregateID,
			Type: outbox.EventType(row.EventType), Payload: json.RawMessage(row.Payload),
			CreatedAt: row.CreatedAt,
		}
	}
	return events, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = 'sent', sent_at = NOW() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("イベントの送信済み更新に失敗: %w", err)
	}
	return nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
