package di

import (
	"testing"

	icache "SqueezeScan/internal/service/cache"
	"SqueezeScan/pkg/config"
)

func TestResponseCacheBackendSelection(t *testing.T) {
	cfg := &config.Config{}
	if _, ok := responseCache(cfg).(*icache.TTLCache); !ok {
		t.Fatal("redis disabled must yield the in-process TTL cache")
	}

	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Host = "localhost"
	cfg.Cache.Redis.Port = 6379
	if _, ok := responseCache(cfg).(*icache.RedisCache); !ok {
		t.Fatal("redis enabled must yield the redis-backed cache")
	}
}
