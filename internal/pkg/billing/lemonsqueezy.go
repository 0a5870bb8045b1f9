package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/planboard/planboard/internal/pkg/env"
)

const defaultLemonSqueezyAPIBaseURL = "https://api.lemonsqueezy.com/v1"

// Client talks to the Lemon Squeezy API for catalog and subscription
// queries. Webhook ingestion does not go through this client; it only
// serves outbound reads and the cancel call.
type Client struct {
	APIKey  string
	StoreID string

	APIBaseURL string

	HTTPClient *http.Client
}

// Product is a catalog entry as served by the provider.
type Product struct {
	ID         string `json:"id"`
	Attributes struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		PriceFormatted string `json:"price_formatted"`
		BuyNowURL      string `json:"buy_now_url"`
		LargeThumbURL  string `json:"large_thumb_url"`
	} `json:"attributes"`
}

// ProviderSubscription is the provider's own view of a subscription.
type ProviderSubscription struct {
	ID         string `json:"id"`
	Attributes struct {
		Status    string `json:"status"`
		UserEmail string `json:"user_email"`
		RenewsAt  string `json:"renews_at"`
		EndsAt    string `json:"ends_at"`
	} `json:"attributes"`
}

// NewClientFromEnv builds a client from LEMONSQUEEZY_* environment keys.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_KEY", "")),
		StoreID:    strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_STORE_ID", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_BASE_URL", defaultLemonSqueezyAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("LEMONSQUEEZY_API_KEY is not configured")
	}

	u, err := url.Parse(strings.TrimRight(c.APIBaseURL, "/") + path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lemonsqueezy %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// GetProducts fetches the store's product catalog.
func (c *Client) GetProducts(ctx context.Context) ([]Product, error) {
	var raw struct {
		Data []Product `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/products", &raw); err != nil {
		return nil, err
	}
	return raw.Data, nil
}

// GetSubscription fetches one subscription by provider id.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}
	var raw struct {
		Data ProviderSubscription `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), &raw); err != nil {
		return nil, err
	}
	return &raw.Data, nil
}

// CancelSubscription asks the provider to cancel a subscription. The local
// record is only updated once the provider confirms via webhook.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return errors.New("subscription id is required")
	}
	return c.doJSON(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(id), nil)
}

// VerifySubscriptionAccess checks that the given customer email owns the
// subscription at the provider. Any error resolves to false.
func (c *Client) VerifySubscriptionAccess(ctx context.Context, subscriptionID, customerEmail string) bool {
	sub, err := c.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(sub.Attributes.UserEmail), strings.TrimSpace(customerEmail))
}
