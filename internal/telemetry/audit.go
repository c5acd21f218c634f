package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
	Room   string `json:"room,omitempty"`
}

// AuditEvent describes one audited mutation.
type AuditEvent struct {
	Level     string
	Action    string
	Text      string
	Room      string
	RequestID string
	UserID    int64
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes an audit envelope. Failures are logged and never returned.
func (e *AuditEmitter) Emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	var userID *string
	if event.UserID != 0 {
		id := strconv.FormatInt(event.UserID, 10)
		userID = &id
	}
	level := event.Level
	if level == "" {
		level = "INFO"
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     event.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   event.Text,
			Action: event.Action,
			Room:   event.Room,
		},
	}

	e.logger.Debug().Str("action", event.Action).Str("request_id", event.RequestID).Int64("user_id", event.UserID).Msg("audit emit")
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, map[string]string{"x-request-id": event.RequestID}); err != nil {
		e.logger.Warn().Err(err).Str("action", event.Action).Msg("audit publish failed")
	}
}
