package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
)

// ReservationPublisher は予約イベントを watermill の Publisher に流す
type ReservationPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewRedisStreamPublisher は Redis Streams を使う watermill Publisher を作成する
func NewRedisStreamPublisher(client *redis.Client, wlogger watermill.LoggerAdapter) (message.Publisher, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("イベントPublisher作成に失敗: %w", err)
	}
	return publisher, nil
}

func NewReservationPublisher(publisher message.Publisher, topic string) *ReservationPublisher {
	return &ReservationPublisher{publisher: publisher, topic: topic}
}

// Publish はイベントをJSONとして配信する
func (p *ReservationPublisher) Publish(ctx context.Context, ev reservation.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("performance_id", ev.PerformanceID)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("イベント配信に失敗: %w", err)
	}
	return nil
}

// Close は内部の Publisher を閉じる
func (p *ReservationPublisher) Close() error {
	return p.publisher.Close()
}
