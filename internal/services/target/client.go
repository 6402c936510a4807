// Package target talks to the platform sites are imported into.
package target

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

const component = "target"

// Session is an authenticated target API session.
type Session struct {
	Token    string
	IssuedAt time.Time
}

// ImportStatus is the state of an import job.
type ImportStatus struct {
	Status string `json:"status"`
	LogRef string `json:"log_ref"`
}

// ImportRequest starts an import of an uploaded artifact.
type ImportRequest struct {
	SiteID       string `json:"site_id"`
	ArtifactKey  string `json:"artifact_key"`
	TargetSiteID string `json:"target_site_id,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Client wraps the target platform REST API.
type Client struct {
	http     *resty.Client
	username string
	password string
	now      func() time.Time
}

// New builds a client from the target section.
func New(cfg config.Target) *Client {
	return &Client{
		http:     services.NewRESTClient(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second),
		username: cfg.Username,
		password: cfg.Password,
		now:      time.Now,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates and returns a new session.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": c.username, "password": c.password}).
		SetResult(&out).
		Post("/api/login")
	if err := services.CheckResponse(component, "login", resp, err); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, services.Wrap(services.ErrSecurity, component, "login", "no token returned", nil)
	}
	return &Session{Token: out.Token, IssuedAt: c.now()}, nil
}

func (c *Client) request(ctx context.Context, s *Session) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if s != nil {
		req.SetAuthToken(s.Token)
	}
	return req
}

// JobStatus returns the status of the import identified by importedSiteID.
func (c *Client) JobStatus(ctx context.Context, s *Session, importedSiteID string) (ImportStatus, error) {
	var out ImportStatus
	resp, err := c.request(ctx, s).
		SetResult(&out).
		Get("/api/imports/" + url.PathEscape(importedSiteID))
	if err := services.CheckResponse(component, "import status", resp, err); err != nil {
		return ImportStatus{}, err
	}
	out.Status = strings.ToLower(strings.TrimSpace(out.Status))
	return out, nil
}

type findResponse struct {
	Sites []struct {
		ID string `json:"id"`
	} `json:"sites"`
}

// FindSite resolves the permanent identifier of a site from the temporary
// transfer identifier returned when the import was started.
func (c *Client) FindSite(ctx context.Context, s *Session, transferSiteID string) (string, error) {
	var out findResponse
	resp, err := c.request(ctx, s).
		SetQueryParam("transfer_id", transferSiteID).
		SetResult(&out).
		Get("/api/sites")
	if err := services.CheckResponse(component, "find site", resp, err); err != nil {
		return "", err
	}
	for _, site := range out.Sites {
		if id := strings.TrimSpace(site.ID); id != "" {
			return id, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, component, "find site", "no site for transfer "+transferSiteID, nil)
}

type startResponse struct {
	TransferSiteID string `json:"transfer_site_id"`
}

// StartImport asks the target to import an uploaded artifact and returns the
// temporary transfer identifier.
func (c *Client) StartImport(ctx context.Context, s *Session, req ImportRequest) (string, error) {
	var out startResponse
	resp, err := c.request(ctx, s).
		SetBody(req).
		SetResult(&out).
		Post("/api/imports")
	if err := services.CheckResponse(component, "start import", resp, err); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.TransferSiteID) == "" {
		return "", services.Wrap(services.ErrValidation, component, "start import", "no transfer id returned", nil)
	}
	return out.TransferSiteID, nil
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	return services.CheckResponse(component, "health", resp, err)
}
