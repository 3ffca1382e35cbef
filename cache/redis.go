package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

var ctx = context.Background()

// sessionKeys is everything Clear has to wipe on logout.
var sessionKeys = []string{
	KeyAccessToken,
	KeySubscribedPage,
	KeyUserPages,
	KeyCurrentConversation,
	KeyCurrentSender,
	KeySendersList,
}

// Redis persists session artifacts across restarts. When the connection
// cannot be established the store degrades to a pass-through: every Load is
// a miss and every Save is dropped, so the console keeps working without
// persistence.
type Redis struct {
	client  *redis.Client
	enabled bool
}

func NewRedis(addr, username, password string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})

	r := &Redis{client: client}
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Redis connection failed: %v", err)
	} else {
		r.enabled = true
		log.Println("Redis connected successfully")
	}
	return r
}

func (r *Redis) Enabled() bool {
	return r.enabled
}

func redisKey(key string) string {
	return fmt.Sprintf("console:session:%s", key)
}

func (r *Redis) Save(key string, value interface{}) error {
	if value == nil {
		return fmt.Errorf("no value provided for key %q", key)
	}
	if !r.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %v", key, err)
	}
	return r.client.Set(ctx, redisKey(key), data, 0).Err()
}

func (r *Redis) Load(key string, dest interface{}) error {
	if !r.enabled {
		return ErrNotFound
	}

	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		log.Printf("❌ Cache read failed for %s: %v", key, err)
		return ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (r *Redis) Remove(key string) error {
	if !r.enabled {
		return nil
	}
	deleted, err := r.client.Del(ctx, redisKey(key)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Clear() error {
	if !r.enabled {
		return nil
	}
	keys := make([]string, len(sessionKeys))
	for i, key := range sessionKeys {
		keys[i] = redisKey(key)
	}
	return r.client.Del(ctx, keys...).Err()
}
