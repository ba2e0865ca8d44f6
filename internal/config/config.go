package config

import (
	"time"

	"github.com/jrsteele09/go-token-manager/oauth2"
)

type Config interface {
	EnvConfig
	TokenManagementConfig
	CacheConfig
	ServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetConfigFile() string
}

// TokenManagementConfig holds the tuning values of the client and user token managers.
type TokenManagementConfig interface {
	GetRefreshBeforeExpiration() time.Duration
	GetCacheKeyPrefix() string
	GetCacheLifetimeBuffer() time.Duration
	GetBackchannelTimeout() time.Duration
	GetDefaultClientName() string
	GetDefaultScheme() string
	GetDefaultChallengeScheme() string
	GetCredentialStyle() oauth2.ClientCredentialStyle
	GetTokenEndpointRetries() uint
	GetTokenEndpointRateLimit() float64
}

type CacheConfig interface {
	GetCacheBackend() CacheBackend
	GetRedisAddress() string
	GetRedisPassword() string
	GetRedisDB() int
	GetSecretsNamePrefix() string
}

type ServerConfig interface {
	GetPort() string
	GetSessionName() string
	GetSessionSecret() string
	GetSecureCookies() bool
}

type mainConfig struct {
	EnvVars
	TokenManagement
	Cache
	Server
}

func New() Config {
	return mainConfig{}
}
