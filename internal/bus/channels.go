package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// CancelAll is the payload broadcast on the emergency channel. Any
// publisher may broadcast it: the kill switch, the daily-loss guard, or
// an operator panic button.
const CancelAll = "CANCEL_ALL"

// Channels provides pub/sub over NATS for the trade-signal and
// emergency-stop channels.
type Channels struct {
	nc               *nats.Conn
	tradeSignalTopic string
	emergencyTopic   string
}

// ChannelsConfig configures the pub/sub channels
type ChannelsConfig struct {
	NATSURL          string
	ClientName       string
	TradeSignalTopic string
	EmergencyTopic   string
}

// NewChannels connects to NATS with infinite reconnects.
func NewChannels(cfg ChannelsConfig) (*Channels, error) {
	if cfg.TradeSignalTopic == "" {
		cfg.TradeSignalTopic = "trade_signals"
	}
	if cfg.EmergencyTopic == "" {
		cfg.EmergencyTopic = "emergency_stop"
	}

	nc, err := nats.Connect(
		cfg.NATSURL,
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("trade_signal_topic", cfg.TradeSignalTopic).
		Str("emergency_topic", cfg.EmergencyTopic).
		Msg("Channels initialized")

	return &Channels{
		nc:               nc,
		tradeSignalTopic: cfg.TradeSignalTopic,
		emergencyTopic:   cfg.EmergencyTopic,
	}, nil
}

// PublishTradeSignal publishes a serialized trade signal on the
// trade_signals channel.
func (c *Channels) PublishTradeSignal(ctx context.Context, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !c.nc.IsConnected() {
		return fmt.Errorf("channel bus not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal trade signal: %w", err)
	}

	if err := c.nc.Publish(c.tradeSignalTopic, data); err != nil {
		return fmt.Errorf("failed to publish trade signal: %w", err)
	}

	log.Debug().Str("topic", c.tradeSignalTopic).Msg("Trade signal published")
	return nil
}

// SubscribeTradeSignals subscribes a handler to the trade_signals channel.
func (c *Channels) SubscribeTradeSignals(handler func(data []byte)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(c.tradeSignalTopic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to trade signals: %w", err)
	}

	log.Info().Str("topic", c.tradeSignalTopic).Msg("Subscribed to trade signals")
	return sub, nil
}

// BroadcastEmergencyStop publishes CANCEL_ALL on the emergency channel.
func (c *Channels) BroadcastEmergencyStop(ctx context.Context, reason string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !c.nc.IsConnected() {
		return fmt.Errorf("channel bus not connected")
	}

	msg := map[string]string{
		"command": CancelAll,
		"reason":  reason,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal emergency message: %w", err)
	}

	if err := c.nc.Publish(c.emergencyTopic, data); err != nil {
		return fmt.Errorf("failed to broadcast emergency stop: %w", err)
	}

	log.Warn().Str("reason", reason).Msg("Emergency stop broadcast")
	return nil
}

// SubscribeEmergencyStop subscribes a handler to the emergency channel.
// The handler receives the reason string attached to the broadcast.
func (c *Channels) SubscribeEmergencyStop(handler func(reason string)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(c.emergencyTopic, func(msg *nats.Msg) {
		var payload map[string]string
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			// Raw CANCEL_ALL with no envelope is also accepted
			handler(string(msg.Data))
			return
		}
		handler(payload["reason"])
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to emergency stop: %w", err)
	}

	log.Info().Str("topic", c.emergencyTopic).Msg("Subscribed to emergency stop")
	return sub, nil
}

// Flush flushes pending publishes. Used by tests and shutdown paths.
func (c *Channels) Flush() error {
	return c.nc.Flush()
}

// IsConnected reports connection health.
func (c *Channels) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close closes the NATS connection.
func (c *Channels) Close() {
	if c.nc != nil {
		c.nc.Close()
		log.Info().Msg("Channels closed")
	}
}
