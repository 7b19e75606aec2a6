// Package archive implements the content-addressed source archive cache
// with an exclusive-build lock (spec.md §4.1), grounded on
// original_source's shelver/archive/base.py Archive.get_or_build.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Producer knows how to compute a deterministic cache basename for its
// (source_dir, revision) and how to materialize the archive into tmpDir,
// returning the path to the freshly written file. The cache owns renaming
// that file over the published cache entry.
type Producer interface {
	Basename(ctx context.Context) (string, error)
	Build(ctx context.Context, tmpDir string) (string, error)
}

// Cache is the archive cache: given a Producer, GetOrBuild produces the
// absolute path of a cached archive, building it at most once across any
// number of cooperating goroutines/processes on the same host.
type Cache struct {
	CacheDir string
	TmpDir   string
}

func New(cacheDir, tmpDir string) *Cache {
	return &Cache{CacheDir: cacheDir, TmpDir: tmpDir}
}

// GetOrBuild implements spec.md §4.1's five-step algorithm.
func (c *Cache) GetOrBuild(ctx context.Context, p Producer) (string, error) {
	basename, err := p.Basename(ctx)
	if err != nil {
		return "", fmt.Errorf("computing archive basename: %w", err)
	}

	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.CacheDir, basename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err == nil {
		return c.produce(ctx, p, f, path)
	}
	if !os.IsExist(err) {
		return "", err
	}

	return c.awaitExisting(path)
}

// produce is taken by the goroutine that created path: it holds the
// exclusive lock for the duration of the build, then renames the result
// over path. Any failure releases the lock and unlinks the partial entry.
func (c *Cache) produce(ctx context.Context, p Producer, f *os.File, path string) (string, error) {
	lock := OpenFileLock(f)
	defer lock.Close()

	if err := lock.Acquire(true); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("acquiring exclusive archive lock: %w", err)
	}

	built, err := p.Build(ctx, c.TmpDir)
	if err != nil {
		os.Remove(path)
		return "", err
	}

	if err := os.Rename(built, path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("publishing archive: %w", err)
	}

	return path, nil
}

// awaitExisting is taken by every goroutine that lost the exclusive
// create race: it opens the existing entry and blocks on a shared lock,
// which only succeeds once any in-progress exclusive holder has
// released it, guaranteeing the entry is byte-complete by the time the
// shared lock is granted.
func (c *Cache) awaitExisting(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	lock := OpenFileLock(f)
	defer lock.Close()

	if err := lock.Acquire(false); err != nil {
		return "", fmt.Errorf("acquiring shared archive lock: %w", err)
	}
	// The shared lock only confirms completeness; it is not held for the
	// lifetime of the returned path, mirroring the source's "acquire,
	// then immediately release" pattern.
	_ = lock.Release()

	return path, nil
}
