// Package gcs implements a blobdb backend on Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	stderrs "errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/blobdb"
	"github.com/bobg/blobdb/backend"
	"github.com/bobg/blobdb/internal/objstore"
)

// Client is an objstore.Client for a Google Cloud Storage bucket.
type Client struct {
	bucket     *storage.BucketHandle
	bucketName string
}

var _ objstore.Client = &Client{}

// New produces a new backend storing objects in the named bucket,
// with keys beginning with prefix.
func New(client *storage.Client, bucketName, prefix string) *objstore.Backend {
	return objstore.New(&Client{bucket: client.Bucket(bucketName), bucketName: bucketName}, prefix)
}

func notExist(err error) error {
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return blobdb.ErrNotFound
	}
	return err
}

// Get implements objstore.Client.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := c.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(notExist(err), "reading info of object %s", key)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", key)
}

// Size implements objstore.Client.
func (c *Client) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := c.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return 0, errors.Wrapf(notExist(err), "getting object attrs for %s", key)
	}
	return attrs.Size, nil
}

// Put implements objstore.Client.
func (c *Client) Put(ctx context.Context, key string, data []byte, ifAbsent bool) error {
	obj := c.bucket.Object(key)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	_, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", key)
	}

	// A failed precondition is reported when the upload is finalized.
	err = w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return blobdb.ErrAlreadyExists
	}
	return errors.Wrapf(err, "writing object %s", key)
}

// Delete implements objstore.Client.
func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.bucket.Object(key).Delete(ctx)
	return errors.Wrapf(notExist(err), "deleting object %s", key)
}

// Copy implements objstore.Client.
func (c *Client) Copy(ctx context.Context, src, dst string) error {
	_, err := c.bucket.Object(dst).CopierFrom(c.bucket.Object(src)).Run(ctx)
	return errors.Wrapf(notExist(err), "copying object %s to %s", src, dst)
}

// List implements objstore.Client.
func (c *Client) List(ctx context.Context, prefix string, f func(string) error) error {
	iter := c.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "iterating over objects with prefix %s", prefix)
		}
		if err = f(obj.Name); err != nil {
			return err
		}
	}
}

// URL implements objstore.Client.
func (c *Client) URL(key string) string {
	return "gs://" + c.bucketName + "/" + key
}

func init() {
	backend.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		prefix, _ := conf["prefix"].(string)
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c, bucketName, prefix), nil
	})
}
