// Package events publishes notifications about recorded sales.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"productsapi/domain"
)

// SaleCreated is the event name carried by sale messages
const SaleCreated = "sale.created"

// SaleItem is one product line of a sale message
type SaleItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// SaleMessage is the payload published after a sale is committed
type SaleMessage struct {
	Event     string     `json:"event"`
	SaleID    uint       `json:"sale_id"`
	Total     float64    `json:"total"`
	Items     []SaleItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewSaleMessage builds the message for a stored sale
func NewSaleMessage(sale domain.Sale) SaleMessage {
	items := make([]SaleItem, 0, len(sale.SaleProducts))
	for _, line := range sale.SaleProducts {
		items = append(items, SaleItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return SaleMessage{
		Event:     SaleCreated,
		SaleID:    sale.ID,
		Total:     sale.Total,
		Items:     items,
		CreatedAt: sale.CreatedAt,
	}
}

// Publisher announces recorded sales
type Publisher interface {
	PublishSale(ctx context.Context, sale domain.Sale) error
	Close() error
}

// NopPublisher drops every event; used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) PublishSale(context.Context, domain.Sale) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// AMQPPublisher sends sale messages to a durable RabbitMQ queue
type AMQPPublisher struct {
	conn  *amqp.Connection
	mu    sync.Mutex // amqp channels are not safe for concurrent publishing
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher dials the broker and declares the queue
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: q.Name}, nil
}

func (p *AMQPPublisher) PublishSale(ctx context.Context, sale domain.Sale) error {
	body, err := json.Marshal(NewSaleMessage(sale))
	if err != nil {
		return fmt.Errorf("marshal sale message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         SaleCreated,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish sale %d: %w", sale.ID, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
