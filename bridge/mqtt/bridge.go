// Package mqtt republishes device topics onto an MQTT broker, giving the
// rest of the network a JSON view of the device's streams without speaking
// the framed wire protocol.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/framelink/client"
	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/wire"
)

var ErrConnect = errors.New("mqtt: connect failed")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
	inboxDepth     = 32
)

// Config holds broker settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
}

// Route maps one device topic to one MQTT topic.
type Route struct {
	Name      string
	Key       wire.Key
	MQTTTopic string
	decode    func([]byte) (any, error)
}

// NewRoute builds a route that decodes frames as t's message type and
// republishes them as JSON.
func NewRoute[M any](t wire.Topic[M], mqttTopic string) Route {
	return Route{
		Name:      t.Name,
		Key:       t.Key,
		MQTTTopic: mqttTopic,
		decode: func(body []byte) (any, error) {
			var msg M
			if err := codec.Unmarshal(body, &msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
	}
}

// Bridge subscribes to device topics on a host client and republishes each
// message to the broker.
type Bridge struct {
	cli    pahomqtt.Client
	host   *client.Client
	routes []Route
	qos    byte
	log    zerolog.Logger
}

// New connects to the broker and prepares the routes. The host client must
// outlive the bridge.
func New(host *client.Client, cfg Config, routes []Route, logger *zerolog.Logger) (*Bridge, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := pahomqtt.NewClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %s", ErrConnect, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Bridge{cli: cli, host: host, routes: routes, qos: cfg.QoS, log: log}, nil
}

// Run pumps every route until ctx is done or the host client closes.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, route := range b.routes {
		g.Go(func() error { return b.pumpRoute(ctx, route) })
	}
	return g.Wait()
}

// Close disconnects from the broker. Device-side subscriptions die with the
// host client.
func (b *Bridge) Close() {
	b.cli.Disconnect(250)
}

func (b *Bridge) pumpRoute(ctx context.Context, route Route) error {
	sub, err := b.host.SubscribeRaw(route.Key, inboxDepth, client.DropOldest)
	if err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", route.Name, err)
	}
	defer sub.Close()

	for {
		frame, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, client.ErrSubClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		msg, err := route.decode(frame.Body)
		if err != nil {
			b.log.Warn().Err(err).Str("route", route.Name).Msg("undecodable topic frame")
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			b.log.Warn().Err(err).Str("route", route.Name).Msg("json encode failed")
			continue
		}
		token := b.cli.Publish(route.MQTTTopic, b.qos, false, payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			b.log.Warn().Err(token.Error()).Str("route", route.Name).Msg("mqtt publish failed")
		}
	}
}
