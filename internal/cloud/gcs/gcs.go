// Package gcs adapts Google Cloud Storage to the cloud.ObjectStore port.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const publicURLPrefix = "https://storage.googleapis.com/"

// uploadTimeout bounds a single object write so one stalled upload cannot
// hold a save batch open indefinitely.
const uploadTimeout = 2 * time.Minute

type Client struct {
	client *storage.Client
	bucket string
}

// NewClient creates a GCS-backed object store for the given bucket.
// Application Default Credentials are used unless options override them.
func NewClient(ctx context.Context, bucket string, opts ...option.ClientOption) (*Client, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Upload writes the bytes under objectName and returns the object's public
// URL. The write is all-or-nothing: a failed Close means nothing durable
// was stored.
func (c *Client) Upload(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(c.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %q: %w", objectName, err)
	}

	return publicURLPrefix + c.bucket + "/" + objectName, nil
}

// Delete removes the object behind a URL previously returned by Upload.
// A URL whose object is already gone is a no-op.
func (c *Client) Delete(ctx context.Context, objectURL string) error {
	objectName, err := c.objectName(objectURL)
	if err != nil {
		return err
	}
	err = c.client.Bucket(c.bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %q: %w", objectName, err)
	}
	return nil
}

func (c *Client) objectName(objectURL string) (string, error) {
	prefix := publicURLPrefix + c.bucket + "/"
	if !strings.HasPrefix(objectURL, prefix) {
		return "", fmt.Errorf("url %q is not in bucket %q", objectURL, c.bucket)
	}
	name := strings.TrimPrefix(objectURL, prefix)
	if name == "" {
		return "", fmt.Errorf("url %q has no object path", objectURL)
	}
	return name, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
