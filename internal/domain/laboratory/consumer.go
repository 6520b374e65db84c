package laboratory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

// Consumer forwards new lab orders to the LIS.
type Consumer struct {
	tests  TestRepository
	lis    *LISClient
	logger zerolog.Logger
}

func NewConsumer(tests TestRepository, lis *LISClient, logger zerolog.Logger) *Consumer {
	return &Consumer{tests: tests, lis: lis, logger: logger}
}

// Register subscribes to lab.order.created. It is a no-op when the LIS is
// disabled.
func (c *Consumer) Register(bus *queue.Bus) {
	if !c.lis.Enabled() {
		return
	}
	bus.Handle("laboratory.lis-submit", queue.TopicLabOrderCreated, c.HandleOrderCreated)
}

func (c *Consumer) HandleOrderCreated(ctx context.Context, payload []byte) error {
	ev, err := queue.Decode[queue.LabOrderCreated](payload)
	if err != nil {
		return err
	}
	orderID, err := c.lis.SubmitOrder(ctx, LISOrder{
		ExternalID: ev.TestID,
		PatientID:  ev.PatientID,
		TestCode:   ev.TestCode,
		Priority:   ev.Priority,
		OrderedAt:  ev.OrderedAt,
	})
	if err != nil {
		return err
	}
	if err := c.tests.SetLISOrderID(ctx, ev.TestID, orderID); err != nil {
		return err
	}
	c.logger.Info().Str("test_id", ev.TestID.String()).Str("lis_order_id", orderID).Msg("lab order submitted to LIS")
	return nil
}
