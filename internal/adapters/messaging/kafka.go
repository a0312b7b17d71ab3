package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/chatflow/workflow-core/internal/platform/metrics"
)

// KafkaConfig configures the Kafka Sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// kafkaMessage is the wire shape published for each delivered reply.
type kafkaMessage struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	Content     string    `json:"content"`
	ReplyTo     *string   `json:"reply_to,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// KafkaSink publishes every reply_message send to a Kafka topic, so a chat
// platform's own ingestion workers can pick them up and deliver them.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	errors   chan error
	metrics  *metrics.Metrics
}

// UseMetrics attaches the process-wide Prometheus registry produced message
// counts are recorded against.
func (s *KafkaSink) UseMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// NewKafkaSink dials brokers and starts a background async producer.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating kafka producer: %w", err)
	}

	sink := &KafkaSink{producer: producer, topic: cfg.Topic, errors: make(chan error, 100)}
	go sink.drainErrors()
	go sink.drainSuccesses()
	return sink, nil
}

func (s *KafkaSink) Send(ctx context.Context, workflowID, executionID, content string, replyTo *string) error {
	msg := kafkaMessage{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Content:     content,
		ReplyTo:     replyTo,
		SentAt:      time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("messaging: serializing message: %w", err)
	}

	producerMsg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(workflowID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case s.producer.Input() <- producerMsg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.errors:
		return fmt.Errorf("messaging: producer error: %w", err)
	}
}

// Close flushes and closes the underlying producer.
func (s *KafkaSink) Close() error {
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("messaging: closing kafka producer: %w", err)
	}
	close(s.errors)
	return nil
}

func (s *KafkaSink) drainErrors() {
	for err := range s.producer.Errors() {
		select {
		case s.errors <- err.Err:
		default:
		}
	}
}

func (s *KafkaSink) drainSuccesses() {
	for range s.producer.Successes() {
		if s.metrics != nil {
			s.metrics.KafkaMessagesProduced.WithLabelValues(s.topic).Inc()
		}
	}
}
