// Package audit carries check-in decisions from the API to the worker,
// which appends them to attendance_audit.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"campusattend/internal/dbtx"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

const MessageType = "audit"

// Event is one check-in or check-out decision. Code is empty on success.
type Event struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	Result         string    `json:"result"`
	Code           string    `json:"code,omitempty"`
	StudentID      string    `json:"student_id"`
	LocationID     string    `json:"location_id,omitempty"`
	DistanceMeters *float64  `json:"distance_m,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher puts events on a queue.
type Publisher struct {
	q queue.Queue
}

func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	msg, err := queue.NewMessage(MessageType, e)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, msg)
}

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

type PostgresRecorder struct {
	db dbtx.DBTX
}

func NewPostgresRecorder(db dbtx.DBTX) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record is idempotent on the event ID so a redelivered message is harmless.
func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, action, result, code, student_id, location_id, distance_m, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Action, e.Result, e.Code, e.StudentID, e.LocationID, e.DistanceMeters, e.OccurredAt)
	return errors.Wrap(err, "insert audit event")
}

// LogRecorder writes events to the log when no database is configured.
type LogRecorder struct {
	Log logrus.FieldLogger
}

func (r LogRecorder) Record(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"event_id":    e.ID,
		"action":      e.Action,
		"result":      e.Result,
		"student_id":  e.StudentID,
		"location_id": e.LocationID,
		"occurred_at": e.OccurredAt,
	}
	if e.Code != "" {
		fields["code"] = e.Code
	}
	if e.DistanceMeters != nil {
		fields["distance_m"] = *e.DistanceMeters
	}
	r.Log.WithFields(fields).Info("audit")
	return nil
}

// Consume records every audit message from q until ctx is done or the
// queue closes. Failures are logged and counted; the message is dropped.
func Consume(ctx context.Context, q queue.Queue, rec Recorder, m *metrics.Metrics, log logrus.FieldLogger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return errors.Wrap(err, "consume audit queue")
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var e Event
		if err := json.Unmarshal(msg.Body, &e); err != nil {
			log.WithError(err).Warn("audit: undecodable event")
			count(m, "invalid")
			continue
		}
		if err := rec.Record(ctx, e); err != nil {
			log.WithError(err).WithField("event_id", e.ID).Error("audit: record failed")
			count(m, "failed")
			continue
		}
		count(m, "recorded")
	}
	return nil
}

func count(m *metrics.Metrics, outcome string) {
	if m != nil {
		m.AuditEvents.WithLabelValues(outcome).Inc()
	}
}
