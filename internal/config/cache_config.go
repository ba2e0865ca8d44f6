package config

type CacheBackend string

const (
	MemoryBackend         CacheBackend = "memory"
	RedisBackend          CacheBackend = "redis"
	SecretsManagerBackend CacheBackend = "secretsmanager"
)

type Cache struct{}

var _ CacheConfig = Cache{}

func (Cache) GetCacheBackend() CacheBackend {
	switch backend := CacheBackend(GetEnv("CACHE_BACKEND", "")); backend {
	case RedisBackend, SecretsManagerBackend:
		return backend
	default:
		return MemoryBackend
	}
}

func (Cache) GetRedisAddress() string {
	return GetEnv("REDIS_ADDRESS", "localhost:6379")
}

func (Cache) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Cache) GetRedisDB() int {
	return getInt("REDIS_DB", 0)
}

func (Cache) GetSecretsNamePrefix() string {
	return GetEnv("SECRETS_NAME_PREFIX", "token-manager/")
}
