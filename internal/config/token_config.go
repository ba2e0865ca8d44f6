package config

import (
	"time"

	"github.com/jrsteele09/go-token-manager/oauth2"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
)

type TokenManagement struct{}

var _ TokenManagementConfig = TokenManagement{}

func (TokenManagement) GetRefreshBeforeExpiration() time.Duration {
	return getSeconds("REFRESH_BEFORE_EXPIRATION", 60*time.Second)
}

func (TokenManagement) GetCacheKeyPrefix() string {
	return GetEnv("CACHE_KEY_PREFIX", "tm::")
}

func (TokenManagement) GetCacheLifetimeBuffer() time.Duration {
	return getSeconds("CACHE_LIFETIME_BUFFER", 60*time.Second)
}

func (TokenManagement) GetBackchannelTimeout() time.Duration {
	return getSeconds("BACKCHANNEL_TIMEOUT", 30*time.Second)
}

func (TokenManagement) GetDefaultClientName() string {
	return GetEnv("DEFAULT_CLIENT", oauthmodel.DefaultClientName)
}

func (TokenManagement) GetDefaultScheme() string {
	return GetEnv("DEFAULT_SCHEME", "")
}

func (TokenManagement) GetDefaultChallengeScheme() string {
	return GetEnv("DEFAULT_CHALLENGE_SCHEME", "")
}

func (TokenManagement) GetCredentialStyle() oauth2.ClientCredentialStyle {
	switch style := oauth2.ClientCredentialStyle(GetEnv("CLIENT_CREDENTIAL_STYLE", "")); style {
	case oauth2.PostBody:
		return style
	default:
		return oauth2.AuthorizationHeader
	}
}

// GetTokenEndpointRetries is the number of attempts made for a token endpoint request that
// fails with a network error or a 5xx. 1 disables retries.
func (TokenManagement) GetTokenEndpointRetries() uint {
	retries := getInt("TOKEN_ENDPOINT_RETRIES", 3)
	if retries < 1 {
		return 1
	}
	return uint(retries)
}

// GetTokenEndpointRateLimit is in requests per second. 0 means unlimited.
func (TokenManagement) GetTokenEndpointRateLimit() float64 {
	limit := getFloat("TOKEN_ENDPOINT_RATE_LIMIT", 0)
	if limit < 0 {
		return 0
	}
	return limit
}
