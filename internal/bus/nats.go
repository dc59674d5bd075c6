package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/rates"
)

// subjectPrefix is the root of the per-asset point subjects.
const subjectPrefix = "rates.points"

// PointSubject returns the subject carrying live points for one asset.
func PointSubject(assetName string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, assetName)
}

// PointPublisher mirrors derived rate points onto NATS so downstream
// consumers can tap the feed without holding a WebSocket connection.
// Delivery is best-effort: the in-process fan-out never waits on it.
type PointPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewPointPublisher connects to the NATS server at url. The connection
// reconnects indefinitely in the background; publishes during an outage are
// buffered by the client up to its internal pending limit.
func NewPointPublisher(url string, logger zerolog.Logger) (*PointPublisher, error) {
	logger = logger.With().Str("component", "natsPublisher").Logger()

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("NATS publisher connected")
	return &PointPublisher{conn: conn, logger: logger}, nil
}

// Publish sends each point to its asset's subject as a JSON message.
func (p *PointPublisher) Publish(ctx context.Context, points []rates.Point) error {
	for _, point := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(point)
		if err != nil {
			return fmt.Errorf("encode point: %w", err)
		}
		if err := p.conn.Publish(PointSubject(point.AssetName), data); err != nil {
			return fmt.Errorf("publish %s: %w", PointSubject(point.AssetName), err)
		}
	}
	return nil
}

// Close flushes pending messages and drops the connection.
func (p *PointPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS drain failed")
		p.conn.Close()
	}
}
