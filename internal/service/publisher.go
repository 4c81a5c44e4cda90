// Package service holds the collector's outward-facing side services,
// currently the RabbitMQ publisher that hands finished run summaries to
// downstream consumers (feature extraction, model training).
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/config"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
)

// JobSummary is the message downstream consumers receive after every
// collection run, whatever its outcome.
type JobSummary struct {
	JobID           string           `json:"job_id"`
	JobType         string           `json:"job_type"`
	Status          string           `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Processed       int              `json:"processed"`
	Skipped         int              `json:"skipped"`
	Errored         int              `json:"errored"`
	QuotaUnits      int              `json:"quota_units"`
	CredentialUnits map[string]int64 `json:"credential_units,omitempty"`
}

// NewJobSummary flattens a finished job and its per-credential unit usage
// into the published message shape.
func NewJobSummary(job *models.CollectionJob, credentialUnits map[string]int64) *JobSummary {
	return &JobSummary{
		JobID:           job.ID.String(),
		JobType:         job.JobType,
		Status:          job.Status,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		Processed:       job.Processed,
		Skipped:         job.Skipped,
		Errored:         job.Errored,
		QuotaUnits:      job.QuotaUnits,
		CredentialUnits: credentialUnits,
	}
}

// SummaryPublisher pushes job summaries to a durable topic exchange with
// publisher confirms, so a summary is either acknowledged by the broker or
// reported as an error.
type SummaryPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *zap.Logger
	mu      sync.RWMutex
}

// NewSummaryPublisher connects to the broker and declares the exchange,
// queue, and binding the summaries flow through.
func NewSummaryPublisher(cfg *config.RabbitMQConfig, log *zap.Logger) (*SummaryPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	p := &SummaryPublisher{
		config: cfg,
		log:    log,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *SummaryPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		p.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		amqp.Table{
			"x-message-ttl": 86400000, // 24 hours
			"x-max-length":  100000,   // max 100k messages
		},
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		p.config.Queue,      // queue name
		p.config.RoutingKey, // routing key
		p.config.Exchange,   // exchange
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	p.conn = conn
	p.channel = ch

	p.log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("queue", p.config.Queue),
	)

	return nil
}

// PublishSummary sends one job summary and waits for the broker's
// acknowledgement. Summaries are advisory: callers log a failure and move
// on rather than failing the job that produced it.
func (p *SummaryPublisher) PublishSummary(ctx context.Context, summary *JobSummary) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	confirms := p.channel.NotifyPublish(make(chan amqp.Confirmation, 1))

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,   // exchange
		p.config.RoutingKey, // routing key
		true,                // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    summary.JobID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return fmt.Errorf("summary was not acknowledged by broker")
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for publish confirmation")
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Debug("Published job summary",
		zap.String("job_id", summary.JobID),
		zap.String("job_type", summary.JobType),
		zap.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// Close shuts down the channel and connection.
func (p *SummaryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	p.log.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the broker connection is still open.
func (p *SummaryPublisher) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
