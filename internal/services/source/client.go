// Package source talks to the platform sites are exported from.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

const component = "source"

// Client wraps the source platform REST API.
type Client struct {
	http *resty.Client
}

// New builds a client from the source section.
func New(cfg config.Source) *Client {
	c := services.NewRESTClient(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{http: c}
}

type sizeResponse struct {
	Bytes int64 `json:"bytes"`
}

type siteResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SiteSize returns the size in bytes the exported archive of siteID will have.
func (c *Client) SiteSize(ctx context.Context, siteID string) (int64, error) {
	var out sizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/sites/" + url.PathEscape(siteID) + "/size")
	if err := services.CheckResponse(component, "site size", resp, err); err != nil {
		return 0, err
	}
	return out.Bytes, nil
}

// SiteTitle returns the display title of siteID.
func (c *Client) SiteTitle(ctx context.Context, siteID string) (string, error) {
	var out siteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/sites/" + url.PathEscape(siteID))
	if err := services.CheckResponse(component, "site info", resp, err); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Title), nil
}

// Archive downloads the export archive of siteID to dest and returns the
// number of bytes written. A partial file is removed on failure.
func (c *Client) Archive(ctx context.Context, siteID, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, services.Wrap(services.ErrConfiguration, component, "archive", "create archive directory", err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "application/zip").
		Get("/api/sites/" + url.PathEscape(siteID) + "/archive")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "archive", "request failed", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if !resp.IsSuccess() {
		data, _ := io.ReadAll(io.LimitReader(body, 512))
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode(), strings.TrimSpace(string(data)))
		return 0, services.Wrap(services.HTTPStatusMarker(resp.StatusCode()), component, "archive", msg, nil)
	}

	tmp := dest + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, component, "archive", "create archive file", err)
	}
	written, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, services.Wrap(services.ErrTransient, component, "archive", "download interrupted", copyErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, services.Wrap(services.ErrConfiguration, component, "archive", "finalize archive file", err)
	}
	return written, nil
}

// SetProperty stores a key/value property on siteID.
func (c *Client) SetProperty(ctx context.Context, siteID, name, value string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"value": value}).
		Put("/api/sites/" + url.PathEscape(siteID) + "/properties/" + url.PathEscape(name))
	return services.CheckResponse(component, "set property", resp, err)
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	return services.CheckResponse(component, "health", resp, err)
}
