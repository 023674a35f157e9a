// Package publisher fans decoded reports out over redis pub/sub.
package publisher

import (
	"context"
	"fmt"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Number of reports kept in each device history list.
const historyLength = 1000

type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisPublisher connects and pings the server before returning.
func NewRedisPublisher(ctx context.Context, opts RedisOptions, log *logrus.Logger) (*RedisPublisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	log.Infof("Connected to redis at %s, publishing on %q", opts.Addr, opts.Channel)

	return &RedisPublisher{
		client:  client,
		channel: opts.Channel,
		log:     log,
	}, nil
}

// Publish sends the report on the channel and appends it to the device
// history. Invalid reports are skipped.
func (p *RedisPublisher) Publish(ctx context.Context, report sentence.ParsedReport) error {
	if !report.Valid {
		return nil
	}
	payload := report.ToJsonBytes()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish report %d: %w", report.SeqNo, err)
	}

	key := HistoryKey(report.ID)
	pipe := p.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, historyLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warnf("Failed to store report %d in %s: %v", report.SeqNo, key, err)
	}
	return nil
}

// History returns up to count of the most recent reports for a device, newest first.
func (p *RedisPublisher) History(ctx context.Context, deviceID string, count int64) ([]sentence.ParsedReport, error) {
	raw, err := p.client.LRange(ctx, HistoryKey(deviceID), 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history of %q: %w", deviceID, err)
	}
	reports := make([]sentence.ParsedReport, 0, len(raw))
	for _, item := range raw {
		if report := sentence.ReportFromJsonBytes([]byte(item)); report != nil {
			reports = append(reports, *report)
		}
	}
	return reports, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func HistoryKey(deviceID string) string {
	if deviceID == "" {
		deviceID = "unknown"
	}
	return fmt.Sprintf("adm300:%s:reports", deviceID)
}
