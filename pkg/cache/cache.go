package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"creditflow/pkg/logger"
)

// ErrCacheMiss, anahtarın önbellekte bulunmadığını bildirir; çağıran
// kaynaktan okumaya düşer.
var ErrCacheMiss = errors.New("önbellekte bulunamadı")

// Cache, bakiye önbelleğinin ihtiyaç duyduğu üç işlemi tanımlar. Değerler
// JSON olarak saklanır; Get hedef struct'a çözer.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// BalanceKey, kullanıcı bakiyesinin önbellek anahtarını üretir. Bakiye
// mutasyonu yapan her servis geçersiz kılma için aynı anahtarı kullanmalıdır.
func BalanceKey(userID int64) string {
	return fmt.Sprintf("balance:%d", userID)
}

type RedisCache struct {
	client *redis.Client
	logger logger.Logger
	prefix string
}

func NewRedisCache(client *redis.Client, logger logger.Logger, prefix string) Cache {
	return &RedisCache{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (r *RedisCache) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("önbellek değeri kodlanamadı: %w", err)
	}

	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return err
	}

	r.logger.Debug("Önbelleğe yazıldı", map[string]interface{}{
		"key": r.key(key),
		"ttl": ttl.String(),
	})
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("önbellek değeri çözülemedi: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
