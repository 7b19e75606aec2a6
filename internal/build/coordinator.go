package build

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cobliteam/shelver/internal/artifact"
	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/registry"
	"github.com/cobliteam/shelver/internal/shelvererr"
	"github.com/cobliteam/shelver/pkg/logger"
)

// BuildState is the one-way state machine of a Build Future, per spec.md
// §4.4.
type BuildState int

const (
	StateScheduled BuildState = iota
	StateResolvingBase
	StateWaitingForSlot
	StateRunning
	StateFinished
)

// Future is a pending or completed build result keyed by (image,
// version); at most one exists per key for the Coordinator's lifetime.
type Future struct {
	Image   *catalog.Image
	Version string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     BuildState
	done      chan struct{}
	artifacts []*artifact.Artifact
	err       error
}

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) Result() ([]*artifact.Artifact, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifacts, f.err
}

func (f *Future) setState(s BuildState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Future) finish(artifacts []*artifact.Artifact, err error) {
	f.mu.Lock()
	f.state = StateFinished
	f.artifacts = artifacts
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// DoneCallback is invoked after each build completes, successfully or
// not.
type DoneCallback func(img *catalog.Image, version string, f *Future)

// Coordinator is the dependency-aware build scheduler of spec.md §4.4.
type Coordinator struct {
	Registry      *registry.Registry
	Runner        *Runner
	MaxBuilds     int
	CancelTimeout time.Duration
	Log           *logger.Logger

	mu        sync.Mutex
	sem       chan struct{}
	builds    map[string]*Future
	pending   map[string]*Future
	stopping  bool
	callbacks []DoneCallback
	waiters   []chan struct{}
	forceCh   chan struct{}
	forceOnce sync.Once
}

func NewCoordinator(reg *registry.Registry, runner *Runner, maxBuilds int, cancelTimeout time.Duration, log *logger.Logger) *Coordinator {
	if maxBuilds <= 0 {
		maxBuilds = 1 << 20 // "default effectively unbounded" per spec.md §4.4
	}
	return &Coordinator{
		Registry:      reg,
		Runner:        runner,
		MaxBuilds:     maxBuilds,
		CancelTimeout: cancelTimeout,
		Log:           log,
		sem:           make(chan struct{}, maxBuilds),
		builds:        map[string]*Future{},
		pending:       map[string]*Future{},
		forceCh:       make(chan struct{}),
	}
}

// AddBuildDoneCallback registers fn to be invoked as fn(image, version,
// future) after each build completes.
func (c *Coordinator) AddBuildDoneCallback(fn DoneCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

func key(imageName, version string) string {
	return imageName + ":" + version
}

// GetOrRunBuild looks up or schedules the build of (image, version),
// defaulting version to image.CurrentVersion. Scheduling the same key
// twice returns the identical Future (spec.md §8's dedup property).
func (c *Coordinator) GetOrRunBuild(ctx context.Context, img *catalog.Image, version string) (*Future, error) {
	if version == "" {
		version = img.CurrentVersion
	}
	k := key(img.Name, version)

	c.mu.Lock()
	if fut, ok := c.builds[k]; ok {
		c.mu.Unlock()
		return fut, nil
	}
	if c.stopping {
		c.mu.Unlock()
		return nil, shelvererr.NewConfigurationError("coordinator is stopping, accepting no new builds")
	}

	futCtx, cancel := context.WithCancel(ctx)
	fut := &Future{
		Image:   img,
		Version: version,
		ctx:     futCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateScheduled,
	}
	c.builds[k] = fut
	c.pending[k] = fut
	c.mu.Unlock()

	go c.runBuild(fut)

	return fut, nil
}

func (c *Coordinator) onBuildFinish(k string, fut *Future) {
	c.mu.Lock()
	delete(c.pending, k)
	empty := len(c.pending) == 0
	waiters := c.waiters
	if empty {
		c.waiters = nil
	}
	callbacks := append([]DoneCallback(nil), c.callbacks...)
	c.mu.Unlock()

	if empty {
		for _, w := range waiters {
			close(w)
		}
	}
	for _, cb := range callbacks {
		cb(fut.Image, fut.Version, fut)
	}
}

// runBuild is the build coroutine of spec.md §4.4: verify the requested
// version is current, resolve the base artifact before acquiring a
// build slot, run the per-image pipeline, then register every artifact
// the pipeline produced.
func (c *Coordinator) runBuild(fut *Future) {
	k := key(fut.Image.Name, fut.Version)
	defer c.onBuildFinish(k, fut)

	if fut.Version != fut.Image.CurrentVersion {
		fut.finish(nil, shelvererr.NewConfigurationError(
			"requested version %q of image %q is not its current version %q",
			fut.Version, fut.Image.Name, fut.Image.CurrentVersion))
		return
	}

	fut.setState(StateResolvingBase)
	base, err := c.resolveBaseArtifact(fut.ctx, fut.Image)
	if err != nil {
		fut.finish(nil, shelvererr.Wrap("base image failed", err))
		return
	}

	fut.setState(StateWaitingForSlot)
	select {
	case c.sem <- struct{}{}:
	case <-fut.ctx.Done():
		fut.finish(nil, fut.ctx.Err())
		return
	}
	defer func() { <-c.sem }()

	fut.setState(StateRunning)
	result, err := c.Runner.Run(fut.ctx, c.forceCh, fut.Image, fut.Version, base)
	if err != nil {
		fut.finish(nil, err)
		return
	}

	artifacts := make([]*artifact.Artifact, 0, len(result.Artifacts))
	for _, raw := range result.Artifacts {
		id, ok := raw["id"]
		if !ok || id == "" {
			if c.Log != nil {
				c.Log.Warn("skipping malformed artifact result", slog.String("image", fut.Image.Name))
			}
			continue
		}
		a, err := c.Registry.LoadArtifactByID(fut.ctx, id, raw["region"], fut.Image.Name, fut.Version)
		if err != nil {
			if c.Log != nil {
				c.Log.Warn("skipping artifact that failed to register", slog.String("image", fut.Image.Name))
			}
			continue
		}
		artifacts = append(artifacts, a)
	}

	fut.finish(artifacts, nil)
}

// resolveBaseArtifact implements spec.md §4.4's base-artifact resolution
// algorithm.
func (c *Coordinator) resolveBaseArtifact(ctx context.Context, img *catalog.Image) (*artifact.Artifact, error) {
	baseName, baseVersion := img.BaseWithVersion()
	if baseName == "" {
		return nil, nil
	}

	cat := c.Registry.Catalog()
	if !cat.Has(baseName) {
		return c.Registry.GetArtifact(baseName)
	}

	baseImg, err := c.Registry.GetImage(baseName)
	if err != nil {
		return nil, err
	}
	version := baseVersion
	if version == "" {
		version = baseImg.CurrentVersion
	}

	if a, ok := c.Registry.GetImageArtifact(baseImg, version); ok {
		return a, nil
	}

	// A pinned, non-current base version can never be satisfied by a
	// fresh build (spec.md §9's open question: the version-mismatch
	// check in runBuild forbids it), so such a reference can only ever
	// be resolved by a pre-existing registered artifact, which the
	// lookup above would have already found.
	if version != baseImg.CurrentVersion {
		return nil, &shelvererr.UnknownArtifactError{Key: fmt.Sprintf("%s:%s", baseName, version)}
	}

	fut, err := c.GetOrRunBuild(ctx, baseImg, version)
	if err != nil {
		return nil, err
	}

	select {
	case <-fut.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	artifacts, err := fut.Result()
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 1 {
		return artifacts[0], nil
	}
	if a, ok := c.Registry.GetImageArtifact(baseImg, version); ok {
		return a, nil
	}
	return nil, &shelvererr.UnknownArtifactError{Key: fmt.Sprintf("%s:%s", baseName, version)}
}

// Cancel requests cooperative cancellation of every pending build. A
// first call sends the polite (context) cancellation; force additionally
// trips every in-flight Watcher's forceful (SIGKILL) path.
func (c *Coordinator) Cancel(force bool) {
	c.mu.Lock()
	c.stopping = true
	pending := make([]*Future, 0, len(c.pending))
	for _, f := range c.pending {
		pending = append(pending, f)
	}
	c.mu.Unlock()

	for _, f := range pending {
		f.cancel()
	}
	if force {
		c.forceOnce.Do(func() { close(c.forceCh) })
	}
}

// RunAll waits until every currently-known and recursively-triggered
// build completes, per spec.md §4.4. On ctx cancellation it cancels each
// pending future once, waits up to CancelTimeout for them to settle,
// then force-cancels.
func (c *Coordinator) RunAll(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return nil
		}
		waiter := make(chan struct{})
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		select {
		case <-waiter:
			continue
		case <-ctx.Done():
			return c.shutdown(ctx, waiter)
		}
	}
}

func (c *Coordinator) shutdown(ctx context.Context, waiter chan struct{}) error {
	c.Cancel(false)

	timer := time.NewTimer(c.CancelTimeout)
	defer timer.Stop()

	select {
	case <-waiter:
		return ctx.Err()
	case <-timer.C:
		c.Cancel(true)
		<-waiter
		return ctx.Err()
	}
}
