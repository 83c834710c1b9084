// Package modelstore keeps downloaded model artifacts on the shared cache
// mount. The first instance that needs an artifact fetches it; every later
// instance reads the file already on disk.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hfserverless/lib/timer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ModelStoreArgs struct {
	CacheDir           string `arg:"--cache-dir,env:TRANSFORMERS_CACHE,help:Directory model artifacts are cached in"`
	ModelStoreS3Bucket string `arg:"--model-store-s3-bucket,env:MODEL_STORE_S3_BUCKET,help:Model hub S3 bucket name"`
	ModelStoreS3Prefix string `arg:"--model-store-s3-prefix,env:MODEL_STORE_S3_PREFIX" default:"models" help:"Key prefix of models in the hub bucket"`
}

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_cache_hits_total",
		Help: "Model artifacts served from the shared cache",
	}, []string{"model"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_cache_misses_total",
		Help: "Model artifacts fetched into the shared cache",
	}, []string{"model"})
)

// ErrNotFound is returned by a Fetcher that does not hold the artifact.
var ErrNotFound = errors.New("model artifact not found")

// Key names one file of one model, e.g. {"org/name", "model.json"}.
type Key struct {
	ModelID string
	File    string
}

func (k Key) Valid() error {
	if k.ModelID == "" || k.File == "" {
		return fmt.Errorf("model id and file must be set: %+v", k)
	}
	for _, part := range append(strings.Split(k.ModelID, "/"), k.File) {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\`) {
			return fmt.Errorf("invalid model artifact key: %+v", k)
		}
	}
	if strings.Contains(k.File, "/") {
		return fmt.Errorf("artifact file %q must not contain '/'", k.File)
	}
	return nil
}

// ObjectPath is the slash separated location of the artifact below a hub prefix.
func (k Key) ObjectPath(prefix string) string {
	return path.Join(prefix, k.ModelID, k.File)
}

// Fetcher writes the artifact named by key into dst or returns ErrNotFound.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, key Key, dst *os.File) error
}

type Cache struct {
	dir      string
	fetchers []Fetcher
	logger   *zap.Logger
	group    singleflight.Group
}

// DefaultCacheDir is used when no cache directory is configured.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "huggingface", "transformers")
}

func NewCache(dir string, logger *zap.Logger, fetchers ...Fetcher) *Cache {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		dir:      dir,
		fetchers: fetchers,
		logger:   logger,
	}
}

func (c *Cache) Dir() string {
	return c.dir
}

// Path is where key lives in the cache: a flat "models--<org>--<name>/<file>"
// layout read only by this cache. It borrows the hub directory naming but has
// no snapshots or refs, so hub tooling cannot share it.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, "models--"+strings.ReplaceAll(key.ModelID, "/", "--"), key.File)
}

// Ensure returns the local path of key, fetching it into the cache first if
// needed. Concurrent misses for the same key in this process share one fetch.
func (c *Cache) Ensure(ctx context.Context, key Key) (string, error) {
	if err := key.Valid(); err != nil {
		return "", err
	}
	local := c.Path(key)
	if _, err := os.Stat(local); err == nil {
		cacheHits.WithLabelValues(key.ModelID).Inc()
		return local, nil
	}
	_, err, _ := c.group.Do(local, func() (interface{}, error) {
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}
		cacheMisses.WithLabelValues(key.ModelID).Inc()
		return nil, c.fetch(ctx, key, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func (c *Cache) fetch(ctx context.Context, key Key, local string) error {
	defer timer.Start("modelstore.fetch").Stop()
	if len(c.fetchers) == 0 {
		return fmt.Errorf("%s/%s: %w (no fetchers configured)", key.ModelID, key.File, ErrNotFound)
	}
	dir := filepath.Dir(local)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	// Other instances may read the cache concurrently, so the artifact only
	// appears under its final name once it is complete.
	tmp, err := os.CreateTemp(dir, "."+key.File+".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	for _, f := range c.fetchers {
		err := f.Fetch(ctx, key, tmp)
		if errors.Is(err, ErrNotFound) {
			c.logger.Debug("model artifact not in source", zap.String("source", f.Name()), zap.String("model", key.ModelID), zap.String("file", key.File))
			if err := reset(tmp); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s/%s from %s: %w", key.ModelID, key.File, f.Name(), err)
		}
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
		}
		if err := os.Rename(tmp.Name(), local); err != nil {
			return fmt.Errorf("failed to move artifact into cache: %w", err)
		}
		c.logger.Info("model artifact cached", zap.String("source", f.Name()), zap.String("model", key.ModelID), zap.String("path", local))
		return nil
	}
	return fmt.Errorf("%s/%s: %w", key.ModelID, key.File, ErrNotFound)
}

func reset(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", f.Name(), err)
	}
	return nil
}
