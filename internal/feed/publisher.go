package feed

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// Publisher pushes accepted opportunities onto a Redis stream so external
// consumers (dashboards, alerting) can follow executions live.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	stream := cfg.Redis.Stream
	if stream == "" {
		stream = "opp:stream"
	}
	return &Publisher{rdb: rdb, stream: stream}
}

// PublishOpportunity appends one accepted opportunity to the stream.
func (p *Publisher) PublishOpportunity(ctx context.Context, routeID string, opp *types.Opportunity) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"route_id":  routeID,
			"venue":     opp.Route.Venue,
			"gross_bps": opp.GrossBps.String(),
			"net_bps":   opp.NetBps.String(),
			"gas_usd":   opp.GasUSD.String(),
			"block":     opp.BlockNumber,
			"ts_ms":     opp.Ts.UnixMilli(),
		},
	}).Err()
}

// Close releases the underlying client.
func (p *Publisher) Close() error { return p.rdb.Close() }
