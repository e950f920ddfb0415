package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig selects the Redis instance frames are mirrored to.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisMirror connects to Redis and returns a Mirror publishing to Redis
// Streams. The connection is checked with a PING before returning.
func NewRedisMirror(ctx context.Context, config RedisConfig, logger watermill.LoggerAdapter) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", config.Addr)
	}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	return NewMirror(pub, config.Prefix), nil
}
