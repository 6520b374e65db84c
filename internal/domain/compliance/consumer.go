package compliance

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/middleware"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// NewAuditPublisher returns the recorder handed to the audit middleware. It
// only enqueues; the Consumer persists.
func NewAuditPublisher(events queue.Publisher) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(ctx context.Context, e middleware.AuditEntry) error {
		return events.Publish(ctx, queue.TopicComplianceAudit, e)
	})
}

// Consumer writes compliance.audit events to the audit log.
type Consumer struct {
	svc    *Service
	logger zerolog.Logger
}

func NewConsumer(svc *Service, logger zerolog.Logger) *Consumer {
	return &Consumer{svc: svc, logger: logger}
}

func (c *Consumer) Register(bus *queue.Bus) {
	bus.Handle("compliance.audit-log", queue.TopicComplianceAudit, c.HandleAudit)
}

func (c *Consumer) HandleAudit(ctx context.Context, payload []byte) error {
	e, err := queue.Decode[middleware.AuditEntry](payload)
	if err != nil {
		return err
	}
	err = c.svc.RecordAudit(ctx, e)
	if apperr.Is(err, apperr.KindInvalid) {
		c.logger.Warn().Err(err).Str("request_id", e.RequestID).Msg("audit entry dropped")
		return nil
	}
	return err
}
