package utils

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"
)

// HTTPClientConfig holds configuration for upstream HTTP client creation
type HTTPClientConfig struct {
	// Timeout bounds the whole exchange; zero leaves streamed bodies unbounded
	Timeout time.Duration
	// ResponseHeaderTimeout bounds the wait for the upstream's response headers
	ResponseHeaderTimeout time.Duration
	// ProxyURL routes every request through an egress proxy when set
	ProxyURL string
	// FollowRedirects makes the client follow 3xx responses itself
	FollowRedirects bool
}

// DefaultHTTPClientConfig returns default HTTP client configuration
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ResponseHeaderTimeout: 2 * time.Minute,
	}
}

// NewHTTPClient creates a new HTTP client with the given configuration.
// Response bodies are never decompressed by the transport so that they can
// be relayed to the client exactly as the upstream sent them.
func NewHTTPClient(config HTTPClientConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.ResponseHeaderTimeout = config.ResponseHeaderTimeout

	if config.ProxyURL != "" {
		proxyURL, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", config.ProxyURL, err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", config.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
	if !config.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// SafeCloseResponse safely closes HTTP response body with error logging
func SafeCloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[HTTP] Warning: failed to close response body: %v", err)
		}
	}
}
