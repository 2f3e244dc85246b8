package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

const redisTimeout = 2 * time.Second

// RedisConfig locates the Redis server telemetry is mirrored to.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RedisPublisher mirrors each message into Redis: the payload is stored under
// <prefix>:<topic> as the latest value and published on the channel of the same
// name.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger customlog.Logger
}

func NewRedisPublisher(cfg RedisConfig, logger customlog.Logger) *RedisPublisher {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "omnidrive"
	}
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
		logger: logger,
	}
}

// Connect checks the server is reachable.
func (p *RedisPublisher) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	p.logger.Infof("Connected to Redis at %s", p.client.Options().Addr)
	return nil
}

func (p *RedisPublisher) Key(topic string) string {
	return fmt.Sprintf("%s:%s", p.prefix, topic)
}

func (p *RedisPublisher) PublishMessage(topic string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	key := p.Key(topic)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.Publish(ctx, key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", key, err)
	}
	return nil
}

// Latest returns the last payload stored for topic.
func (p *RedisPublisher) Latest(ctx context.Context, topic string) ([]byte, error) {
	return p.client.Get(ctx, p.Key(topic)).Bytes()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
