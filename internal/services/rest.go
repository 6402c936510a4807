package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "sitemigrate/1.0"

// NewRESTClient returns a resty client preconfigured for a platform API.
func NewRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

// CheckResponse converts a transport error or a non-2xx response into an
// error tagged with the matching sentinel.
func CheckResponse(component, operation string, resp *resty.Response, err error) error {
	if err != nil {
		return Wrap(ErrTransient, component, operation, "request failed", err)
	}
	if resp == nil {
		return Wrap(ErrTransient, component, operation, "empty response", nil)
	}
	if resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if len(body) > 512 {
		body = body[:512]
	}
	msg := fmt.Sprintf("status %d", resp.StatusCode())
	if body != "" {
		msg += ": " + body
	}
	return Wrap(HTTPStatusMarker(resp.StatusCode()), component, operation, msg, nil)
}
