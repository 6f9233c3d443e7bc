package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует доменные события в Kafka
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Net.DialTimeout = 3 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishCodesIssued публикует событие выпуска партии кодов
func (p *Producer) PublishCodesIssued(codes []*models.Code) error {
	tokens := make([]string, 0, len(codes))
	for _, c := range codes {
		tokens = append(tokens, c.Code)
	}

	event := newEvent(models.EventTypeCodesIssued, models.CodesIssuedData{
		Codes: tokens,
		Count: len(tokens),
	})
	return p.publishEvent(p.topics.Codes, event)
}

// PublishCodeRevoked публикует событие отзыва кода
func (p *Producer) PublishCodeRevoked(code string, affected int64) error {
	event := newEvent(models.EventTypeCodeRevoked, models.CodeRevokedData{
		Code:     code,
		Affected: affected,
	})
	return p.publishEventWithKey(p.topics.Codes, code, event)
}

// PublishCodeRedeemed публикует событие выигрыша
func (p *Producer) PublishCodeRedeemed(data *models.CodeRedeemedData) error {
	event := newEvent(models.EventTypeCodeRedeemed, data)
	return p.publishEventWithKey(p.topics.Redemptions, data.Code, event)
}

func newEvent(eventType models.EventType, data interface{}) models.Event {
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (p *Producer) publishEvent(topic string, event models.Event) error {
	return p.publishEventWithKey(topic, event.ID.String(), event)
}

// publishEventWithKey отправляет событие; ключ задаёт партицию, события одного кода идут по порядку
func (p *Producer) publishEventWithKey(topic, key string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", event.Type, err)
	}

	p.log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"topic":      topic,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")

	return nil
}

// NoopPublisher используется, когда Kafka отключена
type NoopPublisher struct{}

func (NoopPublisher) PublishCodesIssued([]*models.Code) error            { return nil }
func (NoopPublisher) PublishCodeRevoked(string, int64) error             { return nil }
func (NoopPublisher) PublishCodeRedeemed(*models.CodeRedeemedData) error { return nil }
