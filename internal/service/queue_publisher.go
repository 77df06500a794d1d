// Package service holds outbound integrations used by the sync orchestrator.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/showtime-sync/internal/queue"
)

// ErrNotConnected is returned by Close when nothing was ever published.
var ErrNotConnected = errors.New("publisher not connected")

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel on a fresh connection.  The returned closer
// releases both.
type dialFunc func(url string) (amqpChannel, func(), error)

// QueuePublisher publishes ScheduleSyncedEvent messages to the durable
// schedule.synced queue.  The connection is opened lazily, reused across
// publishes and re-opened after any failure.  It is safe for concurrent use.
type QueuePublisher struct {
	url  string
	log  zerolog.Logger
	dial dialFunc

	mu      sync.Mutex
	ch      amqpChannel
	release func()
}

// NewQueuePublisher builds a publisher for the broker at url.  An empty url
// uses queue.DefaultURL.
func NewQueuePublisher(url string, log zerolog.Logger) *QueuePublisher {
	if url == "" {
		url = queue.DefaultURL
	}
	return &QueuePublisher{url: url, log: log.With().Str("component", "queue-publisher").Logger(), dial: dialAMQP}
}

func dialAMQP(url string) (amqpChannel, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, func() { _ = ch.Close(); _ = conn.Close() }, nil
}

// PublishScheduleSynced marshals ev and publishes it as a persistent JSON
// message.  Errors are logged and returned so the caller may ignore them.
func (p *QueuePublisher) PublishScheduleSynced(ctx context.Context, ev queue.ScheduleSyncedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.connect(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrNotConnected
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue.ScheduleSyncedQueue, false, false, pub); err != nil {
		p.log.Warn().Err(err).Str("performance_id", ev.PerformanceID).Msg("rabbitmq publish failed")
		p.reset()
		return err
	}
	return nil
}

// connect dials the broker unless a channel is already open.  The dial runs
// without holding p.mu so a slow or unreachable broker does not block
// Close or concurrent publishers on an open channel.
func (p *QueuePublisher) connect() error {
	p.mu.Lock()
	open := p.ch != nil
	p.mu.Unlock()
	if open {
		return nil
	}

	ch, release, err := p.dial(p.url)
	if err != nil {
		p.log.Warn().Err(err).Msg("rabbitmq connect failed")
		return err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.ScheduleSyncedQueue, true, false, false, false, nil); err != nil {
		release()
		p.log.Warn().Err(err).Msg("rabbitmq queue declare failed")
		return fmt.Errorf("queue declare: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		// Another publisher connected first.
		release()
		return nil
	}
	p.ch, p.release = ch, release
	return nil
}

// Close releases the broker connection, if any.
func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrNotConnected
	}
	p.reset()
	return nil
}

func (p *QueuePublisher) reset() {
	if p.release != nil {
		p.release()
	}
	p.ch, p.release = nil, nil
}
