// Package fanout is the server side of the realtime contract: it
// authenticates sockets, tracks them per user and writes event frames to
// every socket of the addressed user, across nodes via Redis pub/sub.
package fanout

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/storage"
	"github.com/huykn/live-sync/types"
)

// DefaultChannel is the pub/sub channel deliveries travel on.
const DefaultChannel = "livesync:deliveries"

// RedisBus carries deliveries between fanout nodes using Redis Pub/Sub.
// Every node, the publisher included, receives every delivery.
type RedisBus struct {
	client         *redis.Client
	channel        string
	nodeID         string
	serializer     storage.Serializer
	logger         logging.Logger
	pubsub         *redis.PubSub
	callbacks      []func(d types.Delivery)
	callbacksMutex sync.RWMutex
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
}

// NewRedisBus creates a bus. serializer defaults to JSON.
func NewRedisBus(client *redis.Client, channel, nodeID string, serializer storage.Serializer, logger logging.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if serializer == nil {
		serializer = storage.NewJSONSerializer()
	}
	return &RedisBus{
		client:     client,
		channel:    channel,
		nodeID:     nodeID,
		serializer: serializer,
		logger:     logging.OrNoOp(logger),
		callbacks:  make([]func(d types.Delivery), 0),
		done:       make(chan struct{}),
	}
}

// NodeID returns the sender id stamped on published deliveries.
func (b *RedisBus) NodeID() string {
	return b.nodeID
}

// Subscribe starts listening for deliveries. It returns once Redis has
// confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		b.pubsub.Close()
		b.pubsub = nil
		return err
	}

	b.wg.Add(1)
	go b.listen()

	return nil
}

// Publish sends d to every node.
func (b *RedisBus) Publish(ctx context.Context, d types.Delivery) error {
	if d.Sender == "" {
		d.Sender = b.nodeID
	}
	data, err := b.serializer.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// OnDelivery registers a callback for received deliveries.
func (b *RedisBus) OnDelivery(callback func(d types.Delivery)) {
	b.callbacksMutex.Lock()
	defer b.callbacksMutex.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Close stops listening.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		if b.pubsub != nil {
			err = b.pubsub.Close()
		}
		b.wg.Wait()
	})
	return err
}

func (b *RedisBus) listen() {
	defer b.wg.Done()

	ch := b.pubsub.Channel()

	for {
		select {
		case <-b.done:
			return
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}

			var d types.Delivery
			if err := b.serializer.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.logger.Warn("Dropping undecodable delivery", "channel", b.channel, "error", err)
				continue
			}

			b.callbacksMutex.RLock()
			callbacks := b.callbacks
			b.callbacksMutex.RUnlock()

			for _, callback := range callbacks {
				callback(d)
			}
		}
	}
}
