package main

import (
	"net/http"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/config"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/shopify"
)

// maxRowsPerRequest keeps one values update well under the API payload limit.
const maxRowsPerRequest = 5000

type writerStateRecorder interface {
	ObserveWriterState(state string)
}

// writerObserver forwards writer state transitions to the sync metrics.
type writerObserver struct {
	m writerStateRecorder
}

func (o writerObserver) ObserveWriteState(_ string, state destination.State) {
	if o.m == nil {
		return
	}
	o.m.ObserveWriterState(string(state))
}

func writerConfig(cfg config.WriterConfig) destination.Config {
	return destination.Config{
		MinInterval: cfg.MinInterval,
		Retry: destination.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.BaseBackoff,
			MaxBackoff:  cfg.MaxBackoff,
			Jitter:      cfg.Jitter,
		},
		MaxRowsPerRequest: maxRowsPerRequest,
	}
}

func shopifyClient(cfg config.ShopifyConfig, logg *logger.Logger, observer shopify.RequestObserver) (*shopify.Client, error) {
	opts := []shopify.Option{
		shopify.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		shopify.WithAPIVersion(cfg.APIVersion),
		shopify.WithMinInterval(cfg.MinInterval),
		shopify.WithRetry(cfg.MaxAttempts, cfg.BaseBackoff),
		shopify.WithDefaultRetryAfter(cfg.DefaultRetryAfter),
		shopify.WithLogger(logg),
		shopify.WithObserver(observer),
	}
	if cfg.AccessToken == "" {
		opts = append(opts, shopify.WithClientCredentials(cfg.ClientID, cfg.ClientSecret))
	}
	return shopify.NewClient(cfg.StoreURL, cfg.AccessToken, opts...)
}
