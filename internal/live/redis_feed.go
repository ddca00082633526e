package live

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "social:changes"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisFeed shares committed write keys between service instances over Redis pub/sub.
type RedisFeed struct {
	client  *goredis.Client
	channel string
	log     *zap.Logger
}

func NewRedisFeed(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*RedisFeed, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFeed{client: client, channel: channel, log: log}, nil
}

func (f *RedisFeed) Publish(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	body, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, body).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, fn func([]string)) (func(), error) {
	sub := f.client.Subscribe(ctx, f.channel)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			var keys []string
			if err := json.Unmarshal([]byte(msg.Payload), &keys); err != nil {
				f.log.Warn("dropping malformed change notification", zap.Error(err))
				continue
			}
			fn(keys)
		}
	}()

	return func() {
		sub.Close()
		<-done
	}, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
