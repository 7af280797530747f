package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultChannelPrefix = "choreographer:events"

// Publisher delivers workflow events on Redis pub/sub. An event for a state
// with an assigned executor goes to <prefix>:<executor>; otherwise it goes
// to <prefix>:<workflow>:<state>.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

func NewPublisher(client redis.UniversalClient, channelPrefix string) *Publisher {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Publisher{client: client, prefix: channelPrefix}
}

func (p *Publisher) Channel(event models.WorkflowEvent) string {
	if event.TargetExecutor != "" {
		return ExecutorChannel(p.prefix, event.TargetExecutor)
	}
	return fmt.Sprintf("%s:%s:%s", p.prefix, event.WorkflowID, event.TargetState)
}

func (p *Publisher) PublishWorkflowEvent(ctx context.Context, event models.WorkflowEvent) (models.PublishResult, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("marshal workflow event: %w", err)
	}
	channel := p.Channel(event)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("publish to %s: %w", channel, err)
	}
	id := fmt.Sprintf("%s/%s", channel, uuid.NewString())
	log.Debug().
		Str("channel", channel).
		Str("message_id", id).
		Int64("receivers", receivers).
		Msg("published workflow event")
	return models.PublishResult{MessageID: id}, nil
}

func ExecutorChannel(prefix, executor string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + ":" + executor
}

// Subscribe streams events addressed to executor until ctx is done.
// Messages that fail to decode are logged and skipped.
func Subscribe(ctx context.Context, client redis.UniversalClient, channelPrefix, executor string) (<-chan models.WorkflowEvent, error) {
	sub := client.Subscribe(ctx, ExecutorChannel(channelPrefix, executor))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", executor, err)
	}
	out := make(chan models.WorkflowEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.WorkflowEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping undecodable workflow event")
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
