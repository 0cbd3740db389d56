package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPusher publishes messages on notify:{recipient}.
type RedisPusher struct {
	pub publisher
}

func NewRedisPusher(pub publisher) *RedisPusher {
	return &RedisPusher{pub: pub}
}

func (p *RedisPusher) Name() string { return "redis" }

func (p *RedisPusher) Notify(ctx context.Context, recipient string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.pub.Publish(ctx, RecipientChannel(recipient), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", recipient, err)
	}
	return nil
}

func RecipientChannel(recipient string) string {
	return "notify:" + recipient
}
