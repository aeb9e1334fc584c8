package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
	"github.com/hackgods/counseling-scheduler/internal/metrics"
)

const (
	DefaultSubjectPrefix = "counseling"
	DefaultInterval      = 5 * time.Second
)

type envelope struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Relay drains the appointment outbox into a Publisher. Events are delivered
// in insertion order at least once.
type Relay struct {
	outbox  appointment.Outbox
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	batch   int
	prefix  string
	now     func() time.Time
}

func NewRelay(outbox appointment.Outbox, pub Publisher, log *zap.Logger, m *metrics.Metrics, batch int, prefix string) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Relay{outbox: outbox, pub: pub, log: log, metrics: m, batch: batch, prefix: prefix, now: time.Now}
}

// Subject maps APPOINTMENT_CREATED for appointment X to <prefix>.appointment.created.X
func (r *Relay) Subject(ev appointment.EventLog) string {
	parts := []string{r.prefix, strings.ToLower(strings.ReplaceAll(ev.EventType, "_", "."))}
	if ev.AppointmentID != nil {
		parts = append(parts, ev.AppointmentID.String())
	}
	return strings.Join(parts, ".")
}

// RunOnce publishes one batch and marks what was delivered. It stops at the
// first failed publish so later events are not delivered ahead of it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	var publishErr error
	for _, ev := range events {
		msg, err := r.message(ev)
		if err != nil {
			publishErr = err
			break
		}
		if err := r.pub.Publish(ctx, msg); err != nil {
			publishErr = err
			r.metrics.RelayFailed()
			break
		}
		published = append(published, ev.ID)
	}

	if len(published) > 0 {
		if err := r.outbox.MarkPublished(ctx, published, r.now()); err != nil {
			return 0, fmt.Errorf("mark events published: %w", err)
		}
		r.metrics.RelayPublished(len(published))
	}

	if publishErr != nil {
		return len(published), fmt.Errorf("publish event: %w", publishErr)
	}
	return len(published), nil
}

// Run drains the outbox on every tick until ctx is cancelled. A non-positive
// interval falls back to DefaultInterval.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := r.RunOnce(runCtx)
	if err != nil {
		r.log.Error("relay run failed", zap.Int("published", n), zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("relay run complete", zap.Int("published", n), zap.Duration("took", time.Since(start)))
	}
}

func (r *Relay) message(ev appointment.EventLog) (Message, error) {
	env := envelope{
		ID:        ev.ID,
		EventType: ev.EventType,
		CreatedAt: ev.CreatedAt.UTC(),
	}
	if ev.AppointmentID != nil {
		env.AppointmentID = ev.AppointmentID.String()
	}
	if len(ev.Payload) > 0 {
		env.Payload = json.RawMessage(ev.Payload)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Message{}, fmt.Errorf("encode event %d: %w", ev.ID, err)
	}
	return Message{
		Subject: r.Subject(ev),
		ID:      "event-" + strconv.FormatInt(ev.ID, 10),
		Data:    data,
	}, nil
}
