package billing

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// Consumer turns billing.charge events into invoice lines.
type Consumer struct {
	svc    *Service
	logger zerolog.Logger
}

func NewConsumer(svc *Service, logger zerolog.Logger) *Consumer {
	return &Consumer{svc: svc, logger: logger}
}

func (c *Consumer) Register(bus *queue.Bus) {
	bus.Handle("billing.apply-charge", queue.TopicBillingCharge, c.HandleCharge)
}

// HandleCharge drops charges that can never apply instead of retrying them.
func (c *Consumer) HandleCharge(ctx context.Context, payload []byte) error {
	ch, err := queue.Decode[queue.Charge](payload)
	if err != nil {
		return err
	}
	_, err = c.svc.ApplyCharge(ctx, ch)
	if apperr.Is(err, apperr.KindInvalid) || apperr.Is(err, apperr.KindNotFound) {
		c.logger.Error().Err(err).
			Str("patient_id", ch.PatientID.String()).
			Str("source_ref", ch.SourceRef).
			Msg("charge rejected")
		return nil
	}
	return err
}
