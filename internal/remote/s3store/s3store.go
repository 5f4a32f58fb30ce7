// Package s3store is a timestamp backend over an S3-compatible bucket.
// Folders are key prefixes and need no creation.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/openmined/gridsync/internal/remote"
)

const (
	backendName   = "s3"
	defaultRegion = "us-east-1"
	// object metadata holding the client modification time in unix seconds
	metaMtime = "mtime"
)

var ErrNoBucket = errors.New("s3: bucket missing")

type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint selects an S3-compatible service and turns on path-style addressing.
	Endpoint string
}

// API is the subset of *s3.Client the store uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Client struct {
	api    API
	bucket string
}

func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				ForceAttemptHTTP2:   true,
			},
			Timeout: 60 * time.Second,
		}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(api, cfg.Bucket), nil
}

func NewWithAPI(api API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

func (c *Client) Name() string      { return backendName }
func (c *Client) Kind() remote.Kind { return remote.KindTimestamp }

// key drops the leading slash of a remote path.
func key(p string) string {
	return strings.TrimPrefix(p, "/")
}

// List returns the objects directly below folder. Deeper keys are reported
// by S3 as common prefixes and ignored.
func (c *Client) List(ctx context.Context, folder string) (map[string]remote.Entry, error) {
	prefix := strings.TrimSuffix(key(folder), "/") + "/"
	if prefix == "/" {
		prefix = ""
	}

	entries := make(map[string]remote.Entry)
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("list", folder, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			entries[name] = remote.Entry{
				Name:    name,
				ModTime: aws.ToTime(obj.LastModified),
				Size:    aws.ToInt64(obj.Size),
			}
		}
	}
	return entries, nil
}

func (c *Client) Get(ctx context.Context, p string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(p)),
	})
	if err != nil {
		return nil, classify("get", p, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, remote.TransportError(backendName, "get", p, err)
	}
	return data, nil
}

// Put stores data. S3 stamps its own LastModified; modTime is kept as metadata.
func (c *Client) Put(ctx context.Context, p string, data []byte, modTime time.Time) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if !modTime.IsZero() {
		in.Metadata = map[string]string{metaMtime: strconv.FormatInt(modTime.Unix(), 10)}
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return classify("put", p, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, p string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(p)),
	})
	if err != nil {
		return classify("delete", p, err)
	}
	return nil
}

// ModTime is the LastModified of the object, the same time List reports.
func (c *Client) ModTime(ctx context.Context, p string) (time.Time, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(p)),
	})
	if err != nil {
		return time.Time{}, classify("stat", p, err)
	}
	return aws.ToTime(out.LastModified), nil
}

// classify maps SDK errors onto the remote sentinels.
func classify(op, p string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
	)
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s %s %q", remote.ErrNotFound, backendName, op, p)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s %s %q", remote.ErrNotFound, backendName, op, p)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %s %s %q: %w", remote.ErrUnauthorized, backendName, op, p, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: %s %s %q: %w", remote.ErrTransient, backendName, op, p, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		if sentinel := remote.Classify(respErr.HTTPStatusCode()); sentinel != nil {
			return fmt.Errorf("%w: %s %s %q: %w", sentinel, backendName, op, p, err)
		}
		return fmt.Errorf("%s %s %q: %w", backendName, op, p, err)
	}
	if apiErr != nil {
		return fmt.Errorf("%s %s %q: %w", backendName, op, p, err)
	}
	return remote.TransportError(backendName, op, p, err)
}

var (
	_ remote.Store    = (*Client)(nil)
	_ remote.ModTimer = (*Client)(nil)
)
