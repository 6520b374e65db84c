package queue

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// NewKafkaProducer returns a synchronous producer that waits for all
// in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "hms-server"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaForwarder copies bus events to Kafka topics named prefix+topic.
type KafkaForwarder struct {
	producer sarama.SyncProducer
	prefix   string
	logger   zerolog.Logger
}

func NewKafkaForwarder(producer sarama.SyncProducer, prefix string, logger zerolog.Logger) *KafkaForwarder {
	return &KafkaForwarder{
		producer: producer,
		prefix:   prefix,
		logger:   logger.With().Str("component", "kafka").Logger(),
	}
}

// Register adds one forwarding consumer per topic.
func (f *KafkaForwarder) Register(bus *Bus, topics ...string) {
	for _, topic := range topics {
		topic := topic
		bus.handleMessage("kafka-forward-"+topic, topic, func(msg *message.Message) error {
			return f.forward(topic, msg)
		})
	}
}

func (f *KafkaForwarder) forward(topic string, msg *message.Message) error {
	pm := &sarama.ProducerMessage{
		Topic: f.prefix + topic,
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.UUID)},
		},
	}
	if rid := msg.Metadata.Get(metaRequestID); rid != "" {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(metaRequestID), Value: []byte(rid)})
	}
	if key := msg.Metadata.Get(metaKey); key != "" {
		pm.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := f.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("send to kafka %s: %w", pm.Topic, err)
	}
	f.logger.Debug().
		Str("topic", pm.Topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event forwarded")
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.producer.Close()
}
