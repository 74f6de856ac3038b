package framebuffer

import (
	"github.com/redis/go-redis/v9"

	"github.com/evision-ai/evision-lib/internal/model"
)

// NewRedisBufferFactory returns a constructor that backs every source's
// buffer with a RedisStore against rdb instead of the default in-process
// Ring, for deployments that want the FrameBuffer contents visible outside
// this process.
func NewRedisBufferFactory(rdb *redis.Client) func(cfg model.SourceConfig) Store {
	return func(cfg model.SourceConfig) Store {
		normalized := cfg.Normalized()
		key, err := cfg.Key()
		if err != nil {
			// cfg has already been validated by the time a worker is
			// constructed from it; this only guards against a
			// differently-shaped caller bypassing that check.
			return NewRing(normalized.FrameQueueSize)
		}
		return NewRedisStore(rdb, key.String(), normalized.FrameQueueSize)
	}
}
