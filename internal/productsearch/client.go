// Package productsearch queries the RapidAPI marketplace search endpoint for
// products matching a recommended item.
package productsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/smartfit/internal/config"
	"github.com/example/smartfit/internal/models"
)

// Fallbacks for fields missing from a search hit.
const (
	NotAvailable = "Not Available"
	NotSpecified = "Not specified"
)

// Client is safe for concurrent use.
type Client struct {
	http       *resty.Client
	url        string
	country    string
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient builds a client from cfg. The API key and host are sent as
// RapidAPI headers on every request.
func NewClient(cfg config.ProductSearchConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("x-rapidapi-key", cfg.APIKey).
		SetHeader("x-rapidapi-host", cfg.APIHost).
		SetHeader("Accept", "application/json")

	country := cfg.Country
	if country == "" {
		country = "US"
	}

	return &Client{
		http:       httpClient,
		url:        cfg.URL,
		country:    country,
		retryDelay: cfg.RetryDelay,
		logger:     logger.Named("productsearch"),
	}
}

type searchResponse struct {
	Data struct {
		Products []searchHit `json:"products"`
	} `json:"data"`
}

type searchHit struct {
	ASIN               *string `json:"asin"`
	ProductTitle       *string `json:"product_title"`
	ProductPrice       *string `json:"product_price"`
	ProductPhoto       *string `json:"product_photo"`
	ProductURL         *string `json:"product_url"`
	SalesVolume        *string `json:"sales_volume"`
	IsPrime            *bool   `json:"is_prime"`
	Delivery           *string `json:"delivery"`
	ProductDescription *string `json:"product_description"`
}

// Search returns at most limit products for query. A 429 is retried exactly
// once after the configured delay. A 403 and any other failure yield an
// empty list; failures are logged, never returned.
func (c *Client) Search(ctx context.Context, query string, limit int) []models.ProductSummary {
	logger := c.logger.With(zap.String("query", query))

	res, err := c.get(ctx, query)
	if err == nil && res.StatusCode() == http.StatusTooManyRequests {
		logger.Warn("rate limit hit, retrying once", zap.Duration("delay", c.retryDelay))
		if err := sleep(ctx, c.retryDelay); err != nil {
			logger.Warn("product search cancelled during retry delay", zap.Error(err))
			return []models.ProductSummary{}
		}
		res, err = c.get(ctx, query)
	}
	if err != nil {
		logger.Error("product search request failed", zap.Error(err))
		return []models.ProductSummary{}
	}

	switch {
	case res.StatusCode() == http.StatusForbidden:
		logger.Error("product search forbidden, check the API key or subscription")
		return []models.ProductSummary{}
	case !res.IsSuccess():
		logger.Error("product search returned error",
			zap.Int("status_code", res.StatusCode()),
			zap.String("body", truncate(res.String(), 512)))
		return []models.ProductSummary{}
	}

	var body searchResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		logger.Error("error parsing product search response", zap.Error(err))
		return []models.ProductSummary{}
	}

	hits := body.Data.Products
	if len(hits) == 0 {
		logger.Warn("no products found")
	}
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	products := make([]models.ProductSummary, 0, len(hits))
	for _, hit := range hits {
		products = append(products, hit.summary(query))
	}
	logger.Info("product search complete", zap.Int("count", len(products)))
	return products
}

func (c *Client) get(ctx context.Context, query string) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":             query,
			"page":              "1",
			"country":           c.country,
			"sort_by":           "RELEVANCE",
			"product_condition": "ALL",
			"is_prime":          "false",
		}).
		Get(c.url)
}

func (h searchHit) summary(query string) models.ProductSummary {
	isPrime := false
	if h.IsPrime != nil {
		isPrime = *h.IsPrime
	}
	return models.ProductSummary{
		ID:          orDefault(h.ASIN, ""),
		Title:       orDefault(h.ProductTitle, ""),
		Price:       orDefault(h.ProductPrice, NotAvailable),
		PhotoURL:    orDefault(h.ProductPhoto, ""),
		DetailURL:   orDefault(h.ProductURL, ""),
		SalesVolume: orDefault(h.SalesVolume, NotAvailable),
		IsPrime:     isPrime,
		Delivery:    orDefault(h.Delivery, NotSpecified),
		Description: orDefault(h.ProductDescription, ""),
		Query:       query,
	}
}

func orDefault(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
