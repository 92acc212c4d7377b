package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/net/proto"
	"decharge/gateway/logging"
	"decharge/gateway/logging/sinks"
	streamlog "decharge/gateway/logging/stream"
)

func TestMirrorDeliversToSubscribers(t *testing.T) {
	f := New(nil, nil)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := f.Subscribe(ctx)
	require.NoError(t, err)

	f.Mirror(proto.TypeStationStatus, []byte(`{"type":"station_status","payload":{}}`))

	select {
	case msg := <-messages:
		assert.Equal(t, string(proto.TypeStationStatus), msg.Metadata.Get(MetadataType))
		assert.JSONEq(t, `{"type":"station_status","payload":{}}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatalf("no message delivered")
	}
}

func TestMirrorWithoutSubscribersDoesNotBlock(t *testing.T) {
	f := New(nil, nil)
	defer f.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			f.Mirror(proto.TypeWorldPlotClaim, []byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("mirror blocked without subscribers")
	}
}

func TestStalledSubscriberDropsInsteadOfBlocking(t *testing.T) {
	f := New(nil, nil)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < QueueSize*4; i++ {
			f.Mirror(proto.TypeSessionUpdate, []byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("mirror blocked behind a stalled subscriber")
	}
	assert.Positive(t, f.Dropped())
}

func TestMirrorAfterCloseIsIgnored(t *testing.T) {
	f := New(nil, nil)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	f.Mirror(proto.TypeStationStatus, []byte(`{}`))
	assert.Zero(t, f.Dropped())
}

func TestRunWritesActivityEntries(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	router := logging.NewRouter(nil, cfg, nil, []logging.NamedSink{{Name: "memory", Sink: memory}})
	defer router.Close(context.Background())

	f := New(nil, router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	running := make(chan error, 1)
	go func() { running <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.Mirror(proto.TypePointsPurchase, []byte(`{"type":"points_purchase","payload":{}}`))
		for _, event := range memory.Events() {
			if event.Type == streamlog.EventFeedDelivered {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, f.Close())
	select {
	case err := <-running:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after close")
	}
}
