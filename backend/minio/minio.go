// Package minio implements a blobdb backend on MinIO and other S3-compatible storage.
package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
	"github.com/bobg/blobdb/internal/objstore"
)

// Client is an objstore.Client for a MinIO bucket.
type Client struct {
	client *minio.Client
	bucket string
}

var _ objstore.Client = &Client{}

// New produces a new backend storing objects in bucket,
// with keys beginning with prefix.
func New(client *minio.Client, bucket, prefix string) *objstore.Backend {
	return objstore.New(&Client{client: client, bucket: bucket}, prefix)
}

func notExist(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobdb.ErrNotFound
	}
	return err
}

// preconditionFailed tells whether err is the server refusing
// a conditional request.
func preconditionFailed(err error) bool {
	r := minio.ToErrorResponse(err)
	return r.StatusCode == http.StatusPreconditionFailed || r.Code == "PreconditionFailed"
}

// Get implements objstore.Client.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "getting object %s", key)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	return b, errors.Wrapf(notExist(err), "reading contents of object %s", key)
}

// Size implements objstore.Client.
func (c *Client) Size(ctx context.Context, key string) (int64, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, errors.Wrapf(notExist(err), "statting object %s", key)
	}
	return info.Size, nil
}

// Put implements objstore.Client.
// With ifAbsent the upload is conditional on the server side
// (If-None-Match: *),
// so of two racing exclusive creates only one succeeds.
func (c *Client) Put(ctx context.Context, key string, data []byte, ifAbsent bool) error {
	var opts minio.PutObjectOptions
	if ifAbsent {
		opts.SetMatchETagExcept("*")
	}
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if ifAbsent && err != nil && preconditionFailed(err) {
		return blobdb.ErrAlreadyExists
	}
	return errors.Wrapf(err, "putting object %s", key)
}

// Delete implements objstore.Client.
// S3 does not report deletion of a missing object,
// so existence is checked first.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.Size(ctx, key); err != nil {
		return err
	}
	err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	return errors.Wrapf(notExist(err), "removing object %s", key)
}

// Copy implements objstore.Client.
func (c *Client) Copy(ctx context.Context, src, dst string) error {
	_, err := c.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: c.bucket, Object: src},
	)
	return errors.Wrapf(notExist(err), "copying object %s to %s", src, dst)
}

// List implements objstore.Client.
func (c *Client) List(ctx context.Context, prefix string, f func(string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return errors.Wrapf(obj.Err, "listing objects with prefix %s", prefix)
		}
		if err := f(obj.Key); err != nil {
			return err
		}
	}
	return nil
}

// URL implements objstore.Client.
func (c *Client) URL(key string) string {
	return c.client.EndpointURL().JoinPath(c.bucket, key).String()
}

func init() {
	backend.Register("minio", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		endpoint, ok := conf["endpoint"].(string)
		if !ok {
			return nil, errors.New(`missing "endpoint" parameter`)
		}
		bucket, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		var (
			accessKey, _ = conf["access_key"].(string)
			secretKey, _ = conf["secret_key"].(string)
			secure, _    = conf["secure"].(bool)
			prefix, _    = conf["prefix"].(string)
		)
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: secure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating minio client")
		}
		return New(client, bucket, prefix), nil
	})
}
