// Package feed mirrors broadcast live events onto an in-process Watermill
// topic and runs the activity-log consumer on top of it.
package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	streamlog "decharge/gateway/logging/stream"
)

// Topic carries every broadcast live event frame.
const Topic = "gateway.events"

// MetadataType holds the live event type tag on each message.
const MetadataType = "event_type"

// QueueSize bounds the frames waiting to be published onto the topic.
const QueueSize = 256

// Feed hands mirrored frames to a single pump goroutine through a bounded
// queue. Frames that arrive while the queue is full are dropped and counted.
type Feed struct {
	pubsub    *gochannel.GoChannel
	logger    telemetry.Logger
	publisher logging.Publisher

	queue     chan *message.Message
	done      chan struct{}
	pumped    sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// New creates a feed backed by a Watermill go-channel pub/sub and starts its
// pump. Mirror never waits for consumers; a slow consumer stalls only the
// pump.
func New(logger telemetry.Logger, publisher logging.Publisher) *Feed {
	if logger == nil {
		logger = telemetry.Discard()
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            QueueSize,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	f := &Feed{
		pubsub:    pubsub,
		logger:    logger,
		publisher: publisher,
		queue:     make(chan *message.Message, QueueSize),
		done:      make(chan struct{}),
	}
	f.pumped.Add(1)
	go f.pump()
	return f
}

// Mirror implements hub.Mirror. It runs under the store write lock, so it
// only enqueues.
func (f *Feed) Mirror(eventType proto.Type, frame []byte) {
	msg := message.NewMessage(watermill.NewUUID(), append([]byte(nil), frame...))
	msg.Metadata.Set(MetadataType, string(eventType))
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.queue <- msg:
	default:
		if f.dropped.Add(1) == 1 {
			f.logger.Printf("feed queue full, dropping %s", eventType)
		}
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// pump publishes queued frames one at a time. Publish blocks until every
// subscriber acks, which keeps delivery goroutines bounded by subscribers.
func (f *Feed) pump() {
	defer f.pumped.Done()
	for {
		select {
		case <-f.done:
			return
		case msg := <-f.queue:
			if err := f.pubsub.Publish(Topic, msg); err != nil {
				select {
				case <-f.done:
					return
				default:
				}
				f.logger.Printf("feed publish %s failed: %v", msg.Metadata.Get(MetadataType), err)
			}
		}
	}
}

// Subscribe returns the raw message stream for additional in-process
// consumers. Each message must be acked.
func (f *Feed) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	messages, err := f.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("feed subscribe: %w", err)
	}
	return messages, nil
}

// Run consumes the topic until ctx ends or the feed closes, writing one
// activity entry per event.
func (f *Feed) Run(ctx context.Context) error {
	messages, err := f.Subscribe(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		streamlog.FeedDelivered(msg.Context(), f.publisher, streamlog.FeedPayload{
			EventType: msg.Metadata.Get(MetadataType),
			Bytes:     len(msg.Payload),
			MessageID: msg.UUID,
		})
		msg.Ack()
	}
	return nil
}

// Close stops the pump and closes every subscription. Queued frames are
// discarded.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.pubsub.Close()
		f.pumped.Wait()
	})
	return err
}
