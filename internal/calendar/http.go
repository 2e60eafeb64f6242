// Package calendar holds the provider clients that list busy events from
// external calendars and translate them into availability.NormalizedEvent.
package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const defaultRequestTimeout = 30 * time.Second

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// parseToken decodes a stored OAuth2 token credential.
func parseToken(credential string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(credential), &token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" && strings.TrimSpace(token.RefreshToken) == "" {
		return nil, fmt.Errorf("invalid token format: no access or refresh token")
	}
	return &token, nil
}
