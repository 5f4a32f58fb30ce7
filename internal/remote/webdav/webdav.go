// Package webdav is a timestamp backend over WebDAV, laid out the way
// Nextcloud exposes user files.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/openmined/gridsync/internal/version"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	backendName    = "webdav"
	headerDepth    = "Depth"
	headerOCMtime  = "X-OC-Mtime"
	defaultRPS     = 20
	defaultTimeout = 60 * time.Second
)

var ErrNoURL = errors.New("webdav: server url missing")

type Config struct {
	// URL is the server base, e.g. https://cloud.example.com.
	URL      string
	Username string
	Password string
	// Root is the collection all remote paths live under. Empty means the
	// Nextcloud files root of Username.
	Root string

	RequestsPerSecond float64
	Timeout           time.Duration
}

type Client struct {
	http    *req.Client
	root    string
	limiter *rate.Limiter

	folders singleflight.Group
	mu      sync.Mutex
	ensured map[string]bool
}

// NextcloudRoot is the WebDAV collection holding user's files.
func NextcloudRoot(user string) string {
	return "/remote.php/dav/files/" + url.PathEscape(user)
}

func New(cfg *Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	root := cfg.Root
	if root == "" {
		root = NextcloudRoot(cfg.Username)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		root:    strings.TrimRight(root, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		ensured: make(map[string]bool),
	}
	c.http = req.C().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonBasicAuth(cfg.Username, cfg.Password).
		OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			return c.limiter.Wait(r.Context())
		})
	return c, nil
}

func (c *Client) Name() string      { return backendName }
func (c *Client) Kind() remote.Kind { return remote.KindTimestamp }

// url escapes every segment of a slash separated remote path below the root.
func (c *Client) url(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.root + "/" + strings.Join(segments, "/")
}

func (c *Client) propfind(ctx context.Context, p, depth string) (*req.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader(headerDepth, depth).
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBodyString(propfindBody).
		Send("PROPFIND", c.url(p))
}

// EnsureFolder creates folder and its parents as needed. Concurrent calls
// for one folder share a single round of requests, and folders known to
// exist are not checked again.
func (c *Client) EnsureFolder(ctx context.Context, folder string) error {
	c.mu.Lock()
	done := c.ensured[folder]
	c.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := c.folders.Do(folder, func() (any, error) {
		return nil, c.ensureFolder(ctx, folder)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ensured[folder] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) ensureFolder(ctx context.Context, folder string) error {
	current := ""
	for _, segment := range strings.Split(strings.Trim(folder, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment

		resp, err := c.propfind(ctx, current, "0")
		if err != nil {
			return fmt.Errorf("%w: %w", remote.ErrFolderCreate, c.transport("propfind", current, err))
		}
		switch resp.GetStatusCode() {
		case http.StatusOK, http.StatusMultiStatus:
			continue
		case http.StatusNotFound:
		default:
			return fmt.Errorf("%w: %w", remote.ErrFolderCreate, c.statusError(resp, "propfind", current))
		}

		resp, err = c.http.R().SetContext(ctx).Send("MKCOL", c.url(current))
		if err != nil {
			return fmt.Errorf("%w: %w", remote.ErrFolderCreate, c.transport("mkcol", current, err))
		}
		switch resp.GetStatusCode() {
		case http.StatusCreated:
		case http.StatusMethodNotAllowed:
			// created by someone else in the meantime
		default:
			return fmt.Errorf("%w: %w", remote.ErrFolderCreate, c.statusError(resp, "mkcol", current))
		}
	}
	return nil
}

// List returns the files directly inside folder. A missing folder lists as empty.
func (c *Client) List(ctx context.Context, folder string) (map[string]remote.Entry, error) {
	resp, err := c.propfind(ctx, folder, "1")
	if err != nil {
		return nil, c.transport("list", folder, err)
	}
	if resp.GetStatusCode() == http.StatusNotFound {
		return map[string]remote.Entry{}, nil
	}
	if resp.IsErrorState() {
		return nil, c.statusError(resp, "list", folder)
	}

	ms, err := parseMultistatus(resp.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s list %q: %w", backendName, folder, err)
	}

	entries := make(map[string]remote.Entry)
	for _, r := range ms.Responses {
		// the folder itself comes back as a collection and is skipped with the subfolders
		p := r.okProp()
		if p == nil || p.ResourceType.Collection != nil {
			continue
		}
		name, err := r.name()
		if err != nil || name == "" {
			continue
		}
		entries[name] = p.entry(name)
	}
	return entries, nil
}

// ModTime stats a single file.
func (c *Client) ModTime(ctx context.Context, p string) (time.Time, error) {
	resp, err := c.propfind(ctx, p, "0")
	if err != nil {
		return time.Time{}, c.transport("stat", p, err)
	}
	if resp.IsErrorState() {
		return time.Time{}, c.statusError(resp, "stat", p)
	}

	ms, err := parseMultistatus(resp.Bytes())
	if err != nil {
		return time.Time{}, fmt.Errorf("%s stat %q: %w", backendName, p, err)
	}
	for _, r := range ms.Responses {
		if prop := r.okProp(); prop != nil {
			if e := prop.entry(""); !e.ModTime.IsZero() {
				return e.ModTime, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s stat %q: no modification time", remote.ErrNotFound, backendName, p)
}

func (c *Client) Get(ctx context.Context, p string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url(p))
	if err != nil {
		return nil, c.transport("get", p, err)
	}
	if resp.IsErrorState() {
		return nil, c.statusError(resp, "get", p)
	}
	return resp.Bytes(), nil
}

// Put uploads data and asks the server to keep modTime as the file's
// modification time. Servers that ignore the hint stamp their own.
func (c *Client) Put(ctx context.Context, p string, data []byte, modTime time.Time) error {
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBodyBytes(data)
	if !modTime.IsZero() {
		r.SetHeader(headerOCMtime, strconv.FormatInt(modTime.Unix(), 10))
	}
	resp, err := r.Put(c.url(p))
	if err != nil {
		return c.transport("put", p, err)
	}
	if resp.IsErrorState() {
		return c.statusError(resp, "put", p)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, p string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(c.url(p))
	if err != nil {
		return c.transport("delete", p, err)
	}
	if resp.IsErrorState() {
		return c.statusError(resp, "delete", p)
	}
	return nil
}

func (c *Client) transport(op, p string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return remote.TransportError(backendName, op, p, err)
}

func (c *Client) statusError(resp *req.Response, op, p string) error {
	return remote.NewStatusError(backendName, op, p, resp.GetStatusCode(), resp.String())
}

var (
	_ remote.Store         = (*Client)(nil)
	_ remote.FolderEnsurer = (*Client)(nil)
	_ remote.ModTimer      = (*Client)(nil)
)
