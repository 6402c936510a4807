// Package tracker files and resolves issue tracker tickets for failed
// migrations. Each site has at most one open ticket, found by the
// "[site:<id>]" marker in its summary.
package tracker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

const component = "tracker"

// Issue describes a failure report.
type Issue struct {
	SiteID      string
	Summary     string
	Description string
}

type issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// Client wraps the issue tracker REST API.
type Client struct {
	http    *resty.Client
	project string
	reopen  string
	close   string
}

// New builds a client from the tracker section.
func New(cfg config.Tracker) *Client {
	c := services.NewRESTClient(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{http: c, project: cfg.Project, reopen: cfg.ReopenTransition, close: cfg.CloseTransition}
}

// Marker returns the summary tag identifying tickets for siteID.
func Marker(siteID string) string {
	return "[site:" + siteID + "]"
}

// Report files a new ticket for the site or, when one exists, comments on it
// and reopens it if it was closed. It returns the ticket key.
func (c *Client) Report(ctx context.Context, in Issue) (string, error) {
	marker := Marker(in.SiteID)
	existing, err := c.find(ctx, marker)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := c.comment(ctx, existing.Key, in.Description); err != nil {
			return existing.Key, err
		}
		if isClosed(existing.Status) {
			if err := c.transition(ctx, existing.Key, c.reopen); err != nil {
				return existing.Key, err
			}
		}
		return existing.Key, nil
	}

	summary := strings.TrimSpace(in.Summary)
	if !strings.Contains(summary, marker) {
		summary = marker + " " + summary
	}
	var created issue
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"project":     c.project,
			"summary":     summary,
			"description": in.Description,
		}).
		SetResult(&created).
		Post("/api/issues")
	if err := services.CheckResponse(component, "create issue", resp, err); err != nil {
		return "", err
	}
	return created.Key, nil
}

// Close transitions every open ticket for siteID to the close state and
// returns how many were closed.
func (c *Client) Close(ctx context.Context, siteID string) (int, error) {
	issues, err := c.search(ctx, Marker(siteID))
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, is := range issues {
		if isClosed(is.Status) {
			continue
		}
		if err := c.transition(ctx, is.Key, c.close); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	return services.CheckResponse(component, "health", resp, err)
}

func (c *Client) find(ctx context.Context, marker string) (*issue, error) {
	issues, err := c.search(ctx, marker)
	if err != nil || len(issues) == 0 {
		return nil, err
	}
	for i := range issues {
		if !isClosed(issues[i].Status) {
			return &issues[i], nil
		}
	}
	return &issues[0], nil
}

func (c *Client) search(ctx context.Context, marker string) ([]issue, error) {
	var out struct {
		Issues []issue `json:"issues"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"project": c.project, "q": marker}).
		SetResult(&out).
		Get("/api/issues")
	if err := services.CheckResponse(component, "search issues", resp, err); err != nil {
		return nil, err
	}
	matches := out.Issues[:0]
	for _, is := range out.Issues {
		if strings.Contains(is.Summary, marker) {
			matches = append(matches, is)
		}
	}
	return matches, nil
}

func (c *Client) comment(ctx context.Context, key, body string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"body": body}).
		Post("/api/issues/" + url.PathEscape(key) + "/comments")
	return services.CheckResponse(component, "comment issue", resp, err)
}

func (c *Client) transition(ctx context.Context, key, name string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"transition": name}).
		Post("/api/issues/" + url.PathEscape(key) + "/transitions")
	if err := services.CheckResponse(component, "transition issue", resp, err); err != nil {
		return fmt.Errorf("%s %s: %w", name, key, err)
	}
	return nil
}

func isClosed(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "closed", "done", "resolved":
		return true
	}
	return false
}
