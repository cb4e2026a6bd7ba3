package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	pkgkafka "FuturesCast/pkg/kafka"
)

// MessagePublisher is the part of pkg/kafka.Producer the publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, messages ...pkgkafka.Message) error
	Close() error
}

var _ MessagePublisher = (*pkgkafka.Producer)(nil)

// ForecastEvent is the payload of one published horizon forecast.
type ForecastEvent struct {
	EventID      string                         `json:"event_id"`
	RunID        string                         `json:"run_id"`
	Symbol       string                         `json:"symbol"`
	CurrentPrice float64                        `json:"current_price"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	Forecast     models.MarketConsensusForecast `json:"forecast"`
}

// KafkaForecastPublisher emits one event per horizon forecast, keyed by symbol so all
// horizons of a symbol land on the same partition.
type KafkaForecastPublisher struct {
	producer MessagePublisher
	topic    string
	newID    func() string
}

func NewKafkaForecastPublisher(producer MessagePublisher, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, topic: topic, newID: uuid.NewString}
}

func (p *KafkaForecastPublisher) PublishForecast(ctx context.Context, resp *models.ForecastResponse) error {
	if resp == nil || len(resp.Forecasts) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(resp.Forecasts))
	for i, f := range resp.Forecasts {
		msgs[i] = pkgkafka.Message{
			Key: []byte(resp.Symbol),
			Value: ForecastEvent{
				EventID:      p.newID(),
				RunID:        resp.RunID,
				Symbol:       resp.Symbol,
				CurrentPrice: resp.CurrentPrice,
				GeneratedAt:  resp.GeneratedAt,
				Forecast:     f,
			},
			Headers: map[string]string{
				"run_id":      resp.RunID,
				"methodology": f.Methodology,
				"horizon":     f.Horizon,
			},
		}
	}
	if err := p.producer.Publish(ctx, p.topic, msgs...); err != nil {
		return fmt.Errorf("publish forecast %s: %w", resp.RunID, err)
	}
	return nil
}

func (p *KafkaForecastPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.ForecastPublisher = (*KafkaForecastPublisher)(nil)
