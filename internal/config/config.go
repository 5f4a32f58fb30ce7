package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/openmined/gridsync/internal/jsonx"
	"github.com/openmined/gridsync/internal/utils"
)

const (
	BackendDropbox = "dropbox"
	BackendWebDAV  = "webdav"
	BackendS3      = "s3"

	DefaultWorkers = 8
)

var (
	home, _           = os.UserHomeDir()
	DefaultDataDir    = filepath.Join(home, ".gridsync")
	DefaultConfigPath = filepath.Join(DefaultDataDir, "config.json")

	ErrNoOwner    = errors.New("config: owner missing")
	ErrNoGridDir  = errors.New("config: grid dir missing")
	ErrNoBackends = errors.New("config: no backend configured")
)

type Config struct {
	// DataDir holds the lock file, the manifest database and logs.
	DataDir string `json:"data_dir"`
	// GridDir is the local folder with the grid images.
	GridDir string `json:"grid_dir"`
	// Owner names the per-user root on every backend.
	Owner       string   `json:"owner"`
	AliasesFile string   `json:"aliases_file,omitempty"`
	Workers     int      `json:"workers,omitempty"`
	Include     []string `json:"include,omitempty"`

	Dropbox *DropboxConfig `json:"dropbox,omitempty"`
	WebDAV  *WebDAVConfig  `json:"webdav,omitempty"`
	S3      *S3Config      `json:"s3,omitempty"`

	Path string `json:"-"`
}

type DropboxConfig struct {
	AppKey       string `json:"app_key"`
	AppSecret    string `json:"app_secret,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

type WebDAVConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Root overrides the Nextcloud files collection of Username.
	Root string `json:"root,omitempty"`
}

type S3Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
}

// Backends lists the configured backends in sync order.
func (c *Config) Backends() []string {
	var out []string
	if c.Dropbox != nil {
		out = append(out, BackendDropbox)
	}
	if c.WebDAV != nil {
		out = append(out, BackendWebDAV)
	}
	if c.S3 != nil {
		out = append(out, BackendS3)
	}
	return out
}

func (c *Config) HasBackend(name string) bool {
	return slices.Contains(c.Backends(), name)
}

// Validate resolves paths, applies defaults and checks required fields.
func (c *Config) Validate() error {
	var err error

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.DataDir, err = utils.ResolvePath(c.DataDir); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	if c.GridDir == "" {
		return ErrNoGridDir
	}
	if c.GridDir, err = utils.ResolvePath(c.GridDir); err != nil {
		return fmt.Errorf("grid dir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if c.AliasesFile != "" {
		if c.AliasesFile, err = utils.ResolvePath(c.AliasesFile); err != nil {
			return fmt.Errorf("aliases file: %w", err)
		}
	}

	c.Owner = strings.Trim(strings.TrimSpace(c.Owner), "/")
	if c.Owner == "" {
		return ErrNoOwner
	}
	if strings.Contains(c.Owner, "/") {
		return fmt.Errorf("config: owner %q must not contain '/'", c.Owner)
	}

	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	if len(c.Backends()) == 0 {
		return ErrNoBackends
	}
	if c.Dropbox != nil && c.Dropbox.RefreshToken == "" {
		return fmt.Errorf("config: dropbox refresh token missing")
	}
	if c.WebDAV != nil {
		if err := validateURL(c.WebDAV.URL); err != nil {
			return fmt.Errorf("config: webdav url: %w", err)
		}
	}
	if c.S3 != nil && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3 bucket missing")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host missing")
	}
	return nil
}

// Save writes the config as JSON. The file holds credentials and is private to the user.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := jsonx.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := jsonx.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	return &cfg, nil
}
