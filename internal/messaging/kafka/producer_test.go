package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	event := NewBillEvent(EventTypeBillCreated, "bill-1", "INF-00001", "customer-1", 300000)
	if err := producer.PublishEvent(TopicBillEvents, "INF-00001", event); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEventSendError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	if err := producer.PublishEvent(TopicBillEvents, "INF-00001", map[string]string{"k": "v"}); err == nil {
		t.Fatal("expected send error, got nil")
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEventMarshalError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Каналы не сериализуются в JSON.
	if err := producer.PublishEvent(TopicBillEvents, "key", make(chan int)); err == nil {
		t.Fatal("expected marshal error, got nil")
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}
