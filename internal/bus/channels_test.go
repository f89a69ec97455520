package bus

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEmbeddedNATS starts an embedded NATS server for testing
func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		t.Fatal("NATS server did not start in time")
	}

	return ns
}

func newTestChannels(t *testing.T, ns *natsserver.Server) *Channels {
	t.Helper()
	ch, err := NewChannels(ChannelsConfig{
		NATSURL:    ns.ClientURL(),
		ClientName: "channels-test",
	})
	require.NoError(t, err)
	t.Cleanup(ch.Close)
	return ch
}

func TestTradeSignalRoundTrip(t *testing.T) {
	ns := startEmbeddedNATS(t)
	defer ns.Shutdown()

	ch := newTestChannels(t, ns)

	received := make(chan []byte, 1)
	sub, err := ch.SubscribeTradeSignals(func(data []byte) {
		received <- data
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	payload := map[string]interface{}{"ticker_or_event": "NVDA", "action": "buy"}
	require.NoError(t, ch.PublishTradeSignal(context.Background(), payload))
	require.NoError(t, ch.Flush())

	select {
	case data := <-received:
		assert.Contains(t, string(data), "NVDA")
	case <-time.After(2 * time.Second):
		t.Fatal("trade signal not delivered")
	}
}

func TestEmergencyStopDelivery(t *testing.T) {
	ns := startEmbeddedNATS(t)
	defer ns.Shutdown()

	ch := newTestChannels(t, ns)

	reasons := make(chan string, 1)
	sub, err := ch.SubscribeEmergencyStop(func(reason string) {
		reasons <- reason
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, ch.BroadcastEmergencyStop(context.Background(), "daily loss cap reached"))
	require.NoError(t, ch.Flush())

	select {
	case reason := <-reasons:
		assert.Equal(t, "daily loss cap reached", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("emergency stop not delivered")
	}
}
