// Package rabbitmq はアウトボックスのイベントを RabbitMQ に送信する
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
)

// ErrPublisherClosed は Close 後に Publish した場合のエラー
var ErrPublisherClosed = errors.New("パブリッシャーは終了しています")

// Publisher はトピックエクスチェンジにイベントを送る
// ルーティングキーはイベント種別（reservation.created など）
type Publisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewPublisher は接続してエクスチェンジを宣言する
func NewPublisher(url, exchange string) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("RabbitMQ接続に失敗: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("チャネル作成に失敗: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("エクスチェンジ宣言に失敗: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish はイベントを永続メッセージとして送信する
// 接続が切れていた場合は1度だけ再接続する
func (p *Publisher) Publish(ctx context.Context, event *outbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		logger.Warn("RabbitMQに再接続します", zap.String("exchange", p.exchange))
		if err := p.connect(); err != nil {
			return err
		}
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, toPublishing(event)); err != nil {
		return fmt.Errorf("イベント送信に失敗: %w", err)
	}
	return nil
}

// Close は接続を閉じる
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func toPublishing(event *outbox.Event) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.CreatedAt.UTC(),
		Headers: amqp.Table{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		},
		Body: event.Payload,
	}
}

var _ outbox.Publisher = (*Publisher)(nil)
