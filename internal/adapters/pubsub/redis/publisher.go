package redis

import (
	"context"
	"encoding/json"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/redis/go-redis/v9"
)

// Publisher fans room events out over Redis PUBLISH. Channel = prefix + topic.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

func NewPublisher(client redis.UniversalClient, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return customErrors.WrapInternal(err, "marshal event")
	}
	if err := p.client.Publish(ctx, p.prefix+topic, body).Err(); err != nil {
		return customErrors.WrapInternal(err, "publish")
	}
	return nil
}
