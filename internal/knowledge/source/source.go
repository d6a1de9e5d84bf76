// Package source fetches raw documents from local files, HTTP(S) URLs and
// S3 objects.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/charlotte/internal/errdefs"
)

// DefaultMaxBytes caps a fetched document.
const DefaultMaxBytes = 10 << 20

// Source types recorded on ingested documents.
const (
	TypeFile = "file"
	TypeWeb  = "web"
	TypeS3   = "s3"
)

// Fetched is the raw content of one location.
type Fetched struct {
	URI         string
	Type        string
	ContentType string
	Ext         string
	Body        []byte
}

// S3Config configures access to S3-compatible storage. Buckets come from
// the s3:// URI.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Config configures a Loader.
type Config struct {
	HTTPClient *http.Client
	MaxBytes   int64

	// S3 enables s3:// URIs when set.
	S3 *S3Config
}

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader fetches documents by URI.
type Loader struct {
	http     *http.Client
	s3       s3API
	maxBytes int64
}

// NewLoader creates a loader. The S3 client is built from the default AWS
// credential chain unless static keys are configured.
func NewLoader(ctx context.Context, cfg Config) (*Loader, error) {
	l := &Loader{http: cfg.HTTPClient, maxBytes: cfg.MaxBytes}
	if l.http == nil {
		l.http = &http.Client{Timeout: 30 * time.Second}
	}
	if l.maxBytes <= 0 {
		l.maxBytes = DefaultMaxBytes
	}
	if cfg.S3 != nil {
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		l.s3 = client
	}
	return l, nil
}

func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Fetch reads uri. Plain paths and file:// URIs are read from disk.
func (l *Loader) Fetch(ctx context.Context, uri string) (*Fetched, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errdefs.Invalid("source uri is empty")
	}
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// Not a URL (or a Windows drive letter): a local path.
		return l.fetchFile(uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return l.fetchFile(u.Path)
	case "http", "https":
		return l.fetchHTTP(ctx, u)
	case "s3":
		return l.fetchS3(ctx, u)
	default:
		return nil, errdefs.Invalid("unsupported source scheme %q", u.Scheme)
	}
}

func (l *Loader) fetchFile(p string) (*Fetched, error) {
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("file", p)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	body, err := l.read(f, p)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	ext := filepath.Ext(p)
	return &Fetched{
		URI:         "file://" + filepath.ToSlash(abs),
		Type:        TypeFile,
		ContentType: mime.TypeByExtension(ext),
		Ext:         ext,
		Body:        body,
	}, nil
}

func (l *Loader) fetchHTTP(ctx context.Context, u *url.URL) (*Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errdefs.Invalid("bad url %q: %v", u, err)
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.5")
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, errdefs.Backend("source.http", "", err)
	}
	defer resp.Body.Close()

	body, err := l.read(resp.Body, u.String())
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errdefs.NotFound("url", u.String())
	case resp.StatusCode >= 400:
		return nil, errdefs.Backend("source.http", string(body), fmt.Errorf("GET %s: %s", u, resp.Status))
	}
	return &Fetched{
		URI:         u.String(),
		Type:        TypeWeb,
		ContentType: resp.Header.Get("Content-Type"),
		Ext:         path.Ext(u.Path),
		Body:        body,
	}, nil
}

func (l *Loader) fetchS3(ctx context.Context, u *url.URL) (*Fetched, error) {
	if l.s3 == nil {
		return nil, errdefs.Invalid("s3 sources are not configured")
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, errdefs.Invalid("s3 uri %q needs a bucket and a key", u)
	}
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, s3Error(u.String(), err)
	}
	defer out.Body.Close()

	body, err := l.read(out.Body, u.String())
	if err != nil {
		return nil, err
	}
	return &Fetched{
		URI:         u.String(),
		Type:        TypeS3,
		ContentType: aws.ToString(out.ContentType),
		Ext:         path.Ext(key),
		Body:        body,
	}, nil
}

func s3Error(uri string, err error) error {
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return errdefs.NotFound("object", uri)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if strings.EqualFold(apiErr.ErrorCode(), "NotFound") {
			return errdefs.NotFound("object", uri)
		}
		return errdefs.Backend("source.s3", apiErr.ErrorMessage(), err)
	}
	return errdefs.Backend("source.s3", "", err)
}

func (l *Loader) read(r io.Reader, what string) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	if n > l.maxBytes {
		return nil, errdefs.Invalid("%s exceeds %d bytes", what, l.maxBytes)
	}
	return buf.Bytes(), nil
}
