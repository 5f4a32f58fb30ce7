// Package dropbox is the hash backend: a remote.Store over the Dropbox HTTP
// API, identifying files by their content_hash.
package dropbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/gridsync/internal/jsonx"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/version"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL     = "https://api.dropboxapi.com/2"
	DefaultContentURL = "https://content.dropboxapi.com/2"
	DefaultTokenURL   = "https://api.dropbox.com/oauth2/token"

	backendName    = "dropbox"
	headerAPIArg   = "Dropbox-API-Arg"
	listLimit      = 2000
	defaultRPS     = 10
	defaultTimeout = 60 * time.Second
)

var ErrNoRefreshToken = errors.New("dropbox: refresh token missing")

type Config struct {
	AppKey       string
	AppSecret    string
	RefreshToken string

	// Overrides, mostly for tests.
	APIURL            string
	ContentURL        string
	TokenURL          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the Dropbox v2 API. Access tokens are refreshed on demand.
type Client struct {
	api        *req.Client
	content    *req.Client
	apiURL     string
	contentURL string
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
}

func New(cfg *Config) (*Client, error) {
	if cfg.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	c := &Client{
		apiURL:     valueOr(cfg.APIURL, DefaultAPIURL),
		contentURL: valueOr(cfg.ContentURL, DefaultContentURL),
		tokens:     TokenSource(cfg),
		limiter:    rate.NewLimiter(rate.Limit(valueOr(cfg.RequestsPerSecond, defaultRPS)), 1),
	}
	timeout := valueOr(cfg.Timeout, defaultTimeout)
	c.api = c.newHTTPClient(c.apiURL, timeout)
	c.content = c.newHTTPClient(c.contentURL, timeout)
	return c, nil
}

// TokenSource refreshes short-lived access tokens from the long-lived refresh token.
func TokenSource(cfg *Config) oauth2.TokenSource {
	oc := &oauth2.Config{
		ClientID:     cfg.AppKey,
		ClientSecret: cfg.AppSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  valueOr(cfg.TokenURL, DefaultTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
}

func (c *Client) newHTTPClient(baseURL string, timeout time.Duration) *req.Client {
	return req.C().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetJsonMarshal(jsonx.Marshal).
		SetJsonUnmarshal(jsonx.Unmarshal).
		OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			if err := c.limiter.Wait(r.Context()); err != nil {
				return err
			}
			tok, err := c.tokens.Token()
			if err != nil {
				var re *oauth2.RetrieveError
				if errors.As(err, &re) {
					return fmt.Errorf("%w: token refresh: %w", remote.ErrUnauthorized, err)
				}
				return fmt.Errorf("token refresh: %w", err)
			}
			r.SetBearerAuthToken(tok.AccessToken)
			return nil
		})
}

func (c *Client) Name() string      { return backendName }
func (c *Client) Kind() remote.Kind { return remote.KindHash }

// List returns the files directly inside folder keyed by name. A folder that
// does not exist lists as empty.
func (c *Client) List(ctx context.Context, folder string) (map[string]remote.Entry, error) {
	entries := make(map[string]remote.Entry)

	var page listFolderResult
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(&listFolderArg{Path: apiPath(folder), Limit: listLimit}).
		SetSuccessResult(&page).
		Post("/files/list_folder")
	if err := c.check(resp, err, "list", folder); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return entries, nil
		}
		return nil, err
	}

	for {
		for _, md := range page.Entries {
			if md.Tag != "file" {
				continue
			}
			entries[md.Name] = md.entry()
		}
		if !page.HasMore {
			return entries, nil
		}

		cursor := page.Cursor
		page = listFolderResult{}
		resp, err := c.api.R().
			SetContext(ctx).
			SetBody(&listFolderContinueArg{Cursor: cursor}).
			SetSuccessResult(&page).
			Post("/files/list_folder/continue")
		if err := c.check(resp, err, "list", folder); err != nil {
			return nil, err
		}
	}
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	arg, err := apiArg(&pathArg{Path: path})
	if err != nil {
		return nil, err
	}
	resp, err := c.content.R().
		SetContext(ctx).
		SetHeader(headerAPIArg, arg).
		Post("/files/download")
	if err := c.check(resp, err, "download", path); err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}

// Put overwrites path. modTime is sent as client_modified; the hash is what
// identifies the file.
func (c *Client) Put(ctx context.Context, path string, data []byte, modTime time.Time) error {
	upload := &uploadArg{Path: path, Mode: "overwrite", Mute: true}
	if !modTime.IsZero() {
		upload.ClientModified = modTime.UTC().Format(time.RFC3339)
	}
	arg, err := apiArg(upload)
	if err != nil {
		return err
	}
	resp, err := c.content.R().
		SetContext(ctx).
		SetHeader(headerAPIArg, arg).
		SetHeader("Content-Type", "application/octet-stream").
		SetBodyBytes(data).
		Post("/files/upload")
	return c.check(resp, err, "upload", path)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(&pathArg{Path: path}).
		Post("/files/delete_v2")
	return c.check(resp, err, "delete", path)
}

// check turns a transport failure or an error status into a remote error.
// Dropbox reports missing paths as 409 with a not_found error summary.
func (c *Client) check(resp *req.Response, err error, op, path string) error {
	if err != nil {
		if remote.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return remote.TransportError(backendName, op, path, err)
	}
	if !resp.IsErrorState() {
		return nil
	}

	body := resp.String()
	status := resp.GetStatusCode()
	if status == 409 {
		var apiErr apiError
		if jsonx.Unmarshal(resp.Bytes(), &apiErr) == nil && strings.Contains(apiErr.Summary, "not_found") {
			return fmt.Errorf("%w: %s %s %q: %s", remote.ErrNotFound, backendName, op, path, apiErr.Summary)
		}
	}
	return remote.NewStatusError(backendName, op, path, status, body)
}

// apiPath maps the root folder to the empty string Dropbox expects.
func apiPath(folder string) string {
	if folder == "/" {
		return ""
	}
	return folder
}

func valueOr[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

var _ remote.Store = (*Client)(nil)
