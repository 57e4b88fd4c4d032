package pkg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// 同步与协作相关的事件类型
const (
	EventCommunitySynced = "community.synced"
	EventCollabConfirmed = "collab.confirmed"
	EventCollabUnlinked  = "collab.unlinked"
	EventEpisodeReleased = "episode.released"
)

// Event 投递到消息总线的事件，key 为社区 ID，保证同一社区内有序
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CommunityID uint64    `json:"community_id"`
	Title       string    `json:"title,omitempty"`
	Episode     int       `json:"episode,omitempty"`
	Members     []uint64  `json:"members,omitempty"`
	At          time.Time `json:"at"`
}

func NewEvent(eventType string, communityID uint64) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		CommunityID: communityID,
		At:          time.Now().UTC(),
	}
}

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic}, nil
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *KafkaProducer) Send(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Publish 序列化事件并发送
func (p *KafkaProducer) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Send(ctx, MakeKeyFromID(ev.CommunityID), value)
}

func MakeKeyFromID(id uint64) string {
	return fmt.Sprintf("%d", id)
}

// NopPublisher 未配置 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
