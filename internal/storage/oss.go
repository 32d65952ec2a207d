package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSConfig configures the optional object storage mirror.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// Enabled reports whether every required field is present.
func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// OSSPublisher mirrors committed artifacts to an Alibaba Cloud OSS bucket.
type OSSPublisher struct {
	bucket  *oss.Bucket
	prefix  string
	baseURL string
}

// NewOSSPublisher connects to the configured bucket.
func NewOSSPublisher(cfg OSSConfig) (*OSSPublisher, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)
	client, err := oss.New(endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("storage: oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: oss bucket: %w", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("storage: oss endpoint: %w", err)
	}
	return &OSSPublisher{
		bucket:  bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: fmt.Sprintf("%s://%s.%s", u.Scheme, cfg.Bucket, u.Host),
	}, nil
}

// Publish uploads the local file and returns its public URL.
func (p *OSSPublisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	key := p.key(name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := p.bucket.PutObjectFromFile(key, localPath, opts...); err != nil {
		return "", fmt.Errorf("storage: oss put %s: %w", key, err)
	}
	return p.baseURL + "/" + key, nil
}

// Unpublish removes the mirrored object.
func (p *OSSPublisher) Unpublish(ctx context.Context, name string) error {
	if err := p.bucket.DeleteObject(p.key(name), oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("storage: oss delete: %w", err)
	}
	return nil
}

func (p *OSSPublisher) key(name string) string {
	if p.prefix == "" {
		return filepath.Base(name)
	}
	return path.Join(p.prefix, filepath.Base(name))
}

func normalizeEndpoint(ep string) string {
	ep = strings.TrimSpace(ep)
	if ep == "" {
		return ep
	}
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return ep
	}
	return "https://" + ep
}
