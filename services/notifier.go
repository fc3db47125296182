package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
)

const (
	// NotificationExchange is the topic exchange all domain events are published to
	NotificationExchange = "smartfix_topic"
	// NotificationQueue is consumed by the notifier worker
	NotificationQueue = "smartfix.notifications"

	EventUserRegistered       = "user.registered"
	EventRequestCreated       = "request.created"
	EventRequestStatusChanged = "request.status_changed"
)

// Event is a domain event handed to the notification pipeline after commit
type Event struct {
	ID             string        `json:"id"`
	Type           string        `json:"type"`
	OccurredAt     time.Time     `json:"occurredAt"`
	UserID         uint          `json:"userId,omitempty"`
	Email          string        `json:"email,omitempty"`
	Name           string        `json:"name,omitempty"`
	RequestID      uint          `json:"requestId,omitempty"`
	Device         string        `json:"device,omitempty"`
	Status         models.Status `json:"status,omitempty"`
	PreviousStatus models.Status `json:"previousStatus,omitempty"`
}

// Notifier publishes domain events. Implementations must be safe for concurrent use.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

var notifierInstance Notifier = LogNotifier{}

// GetNotifier returns the process-wide notifier
func GetNotifier() Notifier {
	return notifierInstance
}

// SetNotifier sets the process-wide notifier (primarily for testing)
func SetNotifier(n Notifier) {
	if n == nil {
		n = LogNotifier{}
	}
	notifierInstance = n
}

// notifyAfterCommit publishes on a context detached from the caller so a
// disconnecting client does not drop the event. Failures are logged only.
func notifyAfterCommit(ctx context.Context, n Notifier, timeout time.Duration, event Event) {
	if n == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := n.Publish(pubCtx, event); err != nil {
		log.Warn().Err(err).Str("event", event.Type).Msg("failed to publish notification")
	}
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event", event.Type).
		Uint("user_id", event.UserID).
		Uint("request_id", event.RequestID).
		Msg("notification")
	return nil
}

// AMQPNotifier publishes events to a RabbitMQ topic exchange
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewAMQPNotifier connects to the broker and declares the exchange, queue and bindings
func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareNotificationTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info().Str("exchange", NotificationExchange).Msg("connected to RabbitMQ")
	return &AMQPNotifier{conn: conn, ch: ch, exchange: NotificationExchange}, nil
}

// DeclareNotificationTopology declares the exchange and the worker queue with its bindings
func DeclareNotificationTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		NotificationExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", NotificationExchange, err)
	}

	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", NotificationQueue, err)
	}

	for _, key := range []string{"user.*", "request.*"} {
		if err := ch.QueueBind(NotificationQueue, key, NotificationExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", NotificationQueue, key, err)
		}
	}
	return nil
}

// Publish sends the event with its type as routing key
func (n *AMQPNotifier) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the channel and connection
func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close AMQP channel")
	}
	return n.conn.Close()
}

// RecordingNotifier keeps published events in memory for tests
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from every Publish call after recording the event
	Err error
}

// NewRecordingNotifier creates an empty recording notifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns a copy of the recorded events
func (r *RecordingNotifier) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsOfType returns recorded events with the given type
func (r *RecordingNotifier) EventsOfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
