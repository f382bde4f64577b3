// Package users talks to the external user service that owns sale creators.
package users

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// Client looks users up over HTTP.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client for the user service at baseURL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   c,
		logger: logger.Named("users"),
	}
}

// Exists reports whether the user service knows userID.
func (c *Client) Exists(ctx context.Context, userID string) (bool, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		Get("/users/{id}")
	if err != nil {
		return false, fmt.Errorf("error making request to user API: %w", err)
	}

	switch res.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		c.logger.Debug("user not found", zap.String("user_id", userID))
		return false, nil
	default:
		return false, fmt.Errorf("user API returned unexpected status: %d", res.StatusCode())
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}
