package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaForwarder_Forward(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	patient := uuid.New()
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var c Charge
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		if c.PatientID != patient {
			return errors.New("unexpected patient id")
		}
		return nil
	})

	f := NewKafkaForwarder(producer, "hms.", zerolog.Nop())
	payload, _ := json.Marshal(Charge{PatientID: patient, Category: "pharmacy"})
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaKey, patient.String())

	require.NoError(t, f.forward(TopicBillingCharge, msg))
	require.NoError(t, f.Close())
}

func TestKafkaForwarder_ProducerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	f := NewKafkaForwarder(producer, "hms.", zerolog.Nop())
	err := f.forward(TopicPharmacyDispensed, message.NewMessage(watermill.NewUUID(), []byte(`{}`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hms.pharmacy.dispensed")
	require.NoError(t, f.Close())
}

func TestKafkaForwarder_RegisteredOnBus(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()

	b, err := NewBus(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	NewKafkaForwarder(producer, "hms.", zerolog.Nop()).Register(b, TopicStaffLicenseExpiring)
	startBus(t, b)

	require.NoError(t, b.Publish(context.Background(), TopicStaffLicenseExpiring, LicenseExpiring{StaffID: uuid.New()}))
	require.Eventually(t, func() bool { return b.Stats().Handled == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, producer.Close())
}
