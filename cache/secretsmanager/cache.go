// Package secretsmanager is a DistributedCache backed by AWS Secrets Manager, for deployments
// that keep tokens in a secret vault. Secrets Manager has no TTLs, so every value is stored in
// an envelope carrying its expiry and checked on read.
package secretsmanager

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/jrsteele09/go-token-manager/cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ cache.DistributedCache = (*Cache)(nil)

// API is the subset of the Secrets Manager client the cache uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

var _ API = (*secretsmanager.Client)(nil)

type envelope struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type Cache struct {
	client     API
	namePrefix string
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

type Option func(*Cache)

// WithNamePrefix prefixes every secret name, e.g. "token-manager/".
func WithNamePrefix(prefix string) Option {
	return func(c *Cache) {
		c.namePrefix = prefix
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func NewCache(client API, options ...Option) *Cache {
	c := &Cache{
		client:  client,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// secret names allow alphanumerics and /_+=.@-
var nameReplacer = strings.NewReplacer(":", "-")

func (c *Cache) secretName(key string) string {
	return c.namePrefix + nameReplacer.Replace(key)
}

// Get returns a miss for secrets that do not exist or whose envelope has expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.secretName(key)),
	})
	if isNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "Cache.Get GetSecretValue")
	}
	if out.SecretString == nil {
		return "", false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(*out.SecretString), &env); err != nil {
		return "", false, errors.Wrap(err, "Cache.Get Unmarshal")
	}
	if !env.ExpiresAt.IsZero() && !c.nowFunc().Before(env.ExpiresAt) {
		return "", false, nil
	}
	return env.Value, true, nil
}

// Set writes a new secret version, creating the secret on first use.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = c.nowFunc().Add(ttl).UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "Cache.Set Marshal")
	}
	name := c.secretName(key)

	_, err = c.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(data)),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return errors.Wrap(err, "Cache.Set PutSecretValue")
	}

	c.logger.Debug().Str("secret", name).Msg("creating token secret")
	if _, err := c.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(data)),
	}); err != nil {
		return errors.Wrap(err, "Cache.Set CreateSecret")
	}
	return nil
}

// Delete removes the secret immediately, without the recovery window.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(c.secretName(key)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return errors.Wrap(err, "Cache.Delete DeleteSecret")
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return err != nil && errors.As(err, &notFound)
}
