package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/carefollow/callboard/internal/log"
	"github.com/redis/go-redis/v9"
)

// Event announces that the board of an organisation changed in the store.
type Event struct {
	OrganisationID string `json:"organisationId"`
	// Origin is the ID of the hub that published the event.
	Origin string `json:"origin"`
}

// Notifier distributes change events between hub instances.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
	// Listen calls fn for every received event until ctx is cancelled.
	Listen(ctx context.Context, fn func(Event)) error
}

const channelPrefix = "callboard:org:"

// RedisNotifier distributes events using redis pub/sub so every callboard
// instance can refresh its boards.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := n.client.Publish(ctx, channelPrefix+evt.OrganisationID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, fn func(Event)) error {
	pubsub := n.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}

			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.L(ctx).Errorf("failed to decode event on %s: %s", msg.Channel, err)

				continue
			}

			if evt.OrganisationID == "" {
				evt.OrganisationID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}

			fn(evt)
		}
	}
}

// LocalNotifier distributes events between hubs of the same process.
type LocalNotifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event)
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{
		listeners: make(map[int]func(Event)),
	}
}

func (n *LocalNotifier) Publish(_ context.Context, evt Event) error {
	n.mu.Lock()
	listeners := make([]func(Event), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		go fn(evt)
	}

	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, fn func(Event)) error {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	<-ctx.Done()

	n.mu.Lock()
	delete(n.listeners, id)
	n.mu.Unlock()

	return nil
}

var (
	_ Notifier = (*RedisNotifier)(nil)
	_ Notifier = (*LocalNotifier)(nil)
)
