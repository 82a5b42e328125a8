package oss

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/lautwerk/speech_go_server/config"
)

// Client archives finished job reports to OSS. Optional at runtime; the
// pipeline treats a nil client as local-only mode.
type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadReport stores the final analysis report JSON for a job.
func (c *Client) UploadReport(jobID string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("reports/%s/%d.json", jobID, time.Now().Unix())

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType("application/json"))
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Delete removes an archived object.
func (c *Client) Delete(objectKey string) error {
	if err := c.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeleteReport removes an archived report given the URL stored on the
// job record.
func (c *Client) DeleteReport(reportURL string) error {
	key := objectKeyFromURL(reportURL)
	if key == "" {
		return fmt.Errorf("unrecognized report URL: %s", reportURL)
	}
	return c.Delete(key)
}

// objectKeyFromURL recovers the object key from a public or CDN URL.
func objectKeyFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// GetURL returns the public URL, preferring the CDN domain.
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}
