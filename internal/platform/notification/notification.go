// Package notification turns domain events into staff notifications. Each
// subscribed topic has a template; rendered messages go to a Sender and the
// most recent ones are kept in memory for the admin API.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// historySize is how many notifications are retained.
const historySize = 200

type Notification struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Priority  string            `json:"priority"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSender writes notifications to the log.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, n *Notification) error {
	s.Logger.Info().
		Str("notification_id", n.ID).
		Str("topic", n.Topic).
		Str("recipient", n.Recipient).
		Str("priority", n.Priority).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}

// Template renders {{key}} placeholders from event fields.
type Template struct {
	Subject   string
	Body      string
	Priority  string
	Recipient string
}

// DefaultTemplates covers the topics the dispatcher subscribes to.
var DefaultTemplates = map[string]Template{
	queue.TopicLabResultCritical: {
		Subject:   "CRITICAL lab result: {{test_name}}",
		Body:      "Test {{test_code}} for patient {{patient_id}} resulted {{value}} {{unit}} ({{flag}}). Notify the ordering physician immediately.",
		Priority:  "urgent",
		Recipient: "ordering-physician:{{ordered_by}}",
	},
	queue.TopicPharmacyLowStock: {
		Subject:   "Low stock: {{name}} {{strength}}",
		Body:      "{{name}} {{strength}} is at {{stock_quantity}} units (reorder level {{reorder_level}}).",
		Priority:  "normal",
		Recipient: "pharmacy",
	},
	queue.TopicStaffLicenseExpiring: {
		Subject:   "License expiring for {{name}}",
		Body:      "License {{license_number}} of {{name}} ({{employee_id}}) expires on {{expires_on}}.",
		Priority:  "normal",
		Recipient: "{{email}}",
	},
	queue.TopicAppointmentBooked: {
		Subject:   "Appointment booked",
		Body:      "A {{type}} appointment was booked for patient {{patient_id}} at {{scheduled_at}}.",
		Priority:  "low",
		Recipient: "doctor:{{doctor_id}}",
	},
}

// Render substitutes data into t. Unknown placeholders are left as-is.
func (t Template) Render(data map[string]string) (recipient, subject, body string) {
	subject, body, recipient = t.Subject, t.Body, t.Recipient
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
		recipient = strings.ReplaceAll(recipient, placeholder, v)
	}
	return recipient, subject, body
}

type Dispatcher struct {
	sender    Sender
	templates map[string]Template
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	history []*Notification
}

func NewDispatcher(sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		templates: DefaultTemplates,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       time.Now,
	}
}

// Subscribe registers one consumer per templated topic.
func (d *Dispatcher) Subscribe(bus *queue.Bus) {
	for topic := range d.templates {
		topic := topic
		bus.Handle("notify-"+topic, topic, func(ctx context.Context, payload []byte) error {
			_, err := d.Dispatch(ctx, topic, payload)
			return err
		})
	}
}

// Dispatch renders the template for topic from the JSON payload and sends it.
// A send failure is recorded on the notification, not returned, so the queue
// does not redeliver; use Retry instead.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, payload []byte) (*Notification, error) {
	tpl, ok := d.templates[topic]
	if !ok {
		return nil, fmt.Errorf("no notification template for %s", topic)
	}
	data, err := flatten(payload)
	if err != nil {
		return nil, err
	}

	recipient, subject, body := tpl.Render(data)
	n := &Notification{
		ID:        uuid.NewString(),
		Topic:     topic,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Priority:  tpl.Priority,
		Status:    "pending",
		Data:      data,
		CreatedAt: d.now().UTC(),
	}
	d.deliver(ctx, n)
	d.remember(n)
	return n, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	if err := d.sender.Send(ctx, n); err != nil {
		n.Status = "failed"
		n.Error = err.Error()
		d.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("notification send failed")
		return
	}
	sent := d.now().UTC()
	n.Status = "sent"
	n.Error = ""
	n.SentAt = &sent
}

func (d *Dispatcher) remember(n *Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, n)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
}

// Recent returns notifications newest first, optionally filtered by status.
func (d *Dispatcher) Recent(status string) []Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Notification, 0, len(d.history))
	for i := len(d.history) - 1; i >= 0; i-- {
		if status == "" || d.history[i].Status == status {
			out = append(out, *d.history[i])
		}
	}
	return out
}

// Retry re-sends a failed notification.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.history {
		if n.ID != id {
			continue
		}
		if n.Status != "failed" {
			return nil, apperr.Invalid("notification %s is not in failed status (current: %s)", id, n.Status)
		}
		d.deliver(ctx, n)
		cp := *n
		return &cp, nil
	}
	return nil, apperr.NotFound("notification %s not found", id)
}

func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range d.history {
		stats[n.Status]++
	}
	return stats
}

// flatten decodes a JSON object into string fields for template rendering.
func flatten(payload []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	data := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			data[k] = ""
		case string:
			data[k] = val
		case float64:
			data[k] = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
		default:
			b, _ := json.Marshal(val)
			data[k] = string(b)
		}
	}
	return data, nil
}
