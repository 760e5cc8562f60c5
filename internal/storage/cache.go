package storage

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/redis/go-redis/v9"
)

// redisPageCache 缓存结果页原始响应
type redisPageCache struct {
	rdb *redis.Client
}

func (c redisPageCache) Get(ctx context.Context, key string) ([]byte, bool) {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return bs, true
}

func (c redisPageCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	_ = c.rdb.Set(ctx, key, data, ttl).Err()
}

// PageCache 未配置 Redis 时返回 nil
func (s *Store) PageCache() collector.PageCache {
	if s == nil || s.Redis == nil {
		return nil
	}
	return redisPageCache{rdb: s.Redis}
}

// Ping 同时检查数据库与 Redis
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	dbErr := sqlDB.PingContext(ctx)
	var redisErr error
	if s.Redis != nil {
		redisErr = s.Redis.Ping(ctx).Err()
	}
	return errors.Join(dbErr, redisErr)
}
