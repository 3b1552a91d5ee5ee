package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/config"
)

const kvValuePath = "/accounts/{account}/storage/kv/namespaces/{namespace}/values/{key}"

// KVStore talks to the Cloudflare Workers KV values API.
type KVStore struct {
	cfg    *config.CloudflareEnvConfig
	client *resty.Client
}

func NewKVStore(cfg *config.CloudflareEnvConfig) (*KVStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("cloudflare account id, api token and namespace id are required")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	// hand the last response back to resty instead of a "giving up" error
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil

	client := resty.NewWithClient(rc.StandardClient()).
		SetBaseURL(cfg.APIBaseURL).
		SetAuthToken(cfg.APIToken).
		SetPathParams(map[string]string{
			"account":   cfg.AccountID,
			"namespace": cfg.KVNamespaceID,
		}).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	log.Debug().
		Str("base_url", cfg.APIBaseURL).
		Int("retry_max", rc.RetryMax).
		Str("timeout", cfg.Timeout.String()).
		Msg("kv client initialized")

	return &KVStore{
		cfg:    cfg,
		client: client,
	}, nil
}

func (k *KVStore) Name() string { return "kv" }

func (k *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := k.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetHeader("Accept", "application/json").
		Get(kvValuePath)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("kv get request failed")
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("key", key).Str("body", resp.String()).Msg("kv get non-2xx")
		return nil, fmt.Errorf("kv get %s status %d: %s", key, resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}

func (k *KVStore) Put(ctx context.Context, key string, value []byte) error {
	resp, err := k.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetHeader("Content-Type", "application/json").
		SetBody(value).
		Put(kvValuePath)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("kv put request failed")
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("key", key).Str("body", resp.String()).Msg("kv put non-2xx")
		return fmt.Errorf("kv put %s status %d: %s", key, resp.StatusCode(), resp.String())
	}
	log.Info().Str("key", key).Int("bytes", len(value)).Msg("kv put ok")
	return nil
}
