package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	eventsExchange         = "events_exchange"
	routingNotificationNew = "notification.created"
)

// NotificationEvent 通知创建后广播给其他服务（推送、统计等）
type NotificationEvent struct {
	NotificationID   string    `json:"notification_id"`
	Type             string    `json:"type"`
	Blog             string    `json:"blog"`
	NotificationFor  string    `json:"notification_for"`
	User             string    `json:"user"`
	Comment          *string   `json:"comment,omitempty"`
	RepliedOnComment *string   `json:"replied_on_comment,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type EventPublisher interface {
	PublishNotification(ctx context.Context, event NotificationEvent) error
	Close() error
}

// RabbitMQPublisher 发布到 fanout exchange
type RabbitMQPublisher struct {
	url     string
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	err = ch.ExchangeDeclare(
		eventsExchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.channel = ch
	return nil
}

func (p *RabbitMQPublisher) PublishNotification(ctx context.Context, event NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 连接断开后重连一次
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	return p.channel.PublishWithContext(ctx,
		eventsExchange,
		routingNotificationNew,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher 未配置 RABBITMQ_URL 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishNotification(context.Context, NotificationEvent) error { return nil }
func (NoopPublisher) Close() error                                             { return nil }
