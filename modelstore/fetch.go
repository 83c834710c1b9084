package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"hfserverless/s3"
)

// Downloader is the part of the s3 client the hub fetcher needs.
type Downloader interface {
	Download(ctx context.Context, w io.Writer, key, bucketName string) (int64, error)
}

var _ Downloader = s3.Client{}

// S3Fetcher reads artifacts from the model hub bucket at <prefix>/<model id>/<file>.
type S3Fetcher struct {
	client Downloader
	bucket string
	prefix string
}

func NewS3Fetcher(client Downloader, bucket, prefix string) S3Fetcher {
	return S3Fetcher{client: client, bucket: bucket, prefix: prefix}
}

func (f S3Fetcher) Name() string {
	return fmt.Sprintf("s3://%s/%s", f.bucket, f.prefix)
}

func (f S3Fetcher) Fetch(ctx context.Context, key Key, dst *os.File) error {
	_, err := f.client.Download(ctx, dst, key.ObjectPath(f.prefix), f.bucket)
	if errors.Is(err, s3.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// FSFetcher reads artifacts bundled with the binary, laid out as
// <root>/<model id>/<file>.
type FSFetcher struct {
	fsys fs.FS
	root string
	name string
}

func NewFSFetcher(name string, fsys fs.FS, root string) FSFetcher {
	return FSFetcher{fsys: fsys, root: root, name: name}
}

func (f FSFetcher) Name() string {
	return f.name
}

func (f FSFetcher) Fetch(ctx context.Context, key Key, dst *os.File) error {
	src, err := f.fsys.Open(key.ObjectPath(f.root))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}
