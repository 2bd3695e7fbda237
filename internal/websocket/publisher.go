package websocket

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/models"
)

func userChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// Publisher sends updates over redis pub/sub so whichever replica holds the
// user's socket can deliver them.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode websocket message")
		return
	}
	if err := p.redis.Publish(ctx, userChannel(userID), data).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to publish websocket message")
	}
}
