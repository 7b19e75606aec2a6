package build

import (
	"context"
	"testing"
	"time"

	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/registry"
)

func testRegistry(t *testing.T, doc string) *registry.Registry {
	t.Helper()
	cat, err := catalog.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("failed to parse test catalog: %v", err)
	}
	return registry.New(cat, nil)
}

func newTestCoordinator(t *testing.T, doc string, maxBuilds int) (*Coordinator, *registry.Registry) {
	t.Helper()
	reg := testRegistry(t, doc)
	runner := &Runner{BuilderCmd: []string{"/nonexistent-builder"}}
	coord := NewCoordinator(reg, runner, maxBuilds, 50*time.Millisecond, nil)
	return coord, reg
}

func TestGetOrRunBuildDedupesSameKey(t *testing.T) {
	coord, reg := newTestCoordinator(t, `
web:
  version: "1.0.0"
`, 1)

	img, err := reg.GetImage("web")
	if err != nil {
		t.Fatalf("GetImage returned error: %v", err)
	}

	f1, err := coord.GetOrRunBuild(context.Background(), img, "1.0.0")
	if err != nil {
		t.Fatalf("first GetOrRunBuild returned error: %v", err)
	}
	f2, err := coord.GetOrRunBuild(context.Background(), img, "1.0.0")
	if err != nil {
		t.Fatalf("second GetOrRunBuild returned error: %v", err)
	}
	if f1 != f2 {
		t.Errorf("expected the same Future for a duplicate (image, version) request")
	}

	<-f1.Done()
}

func TestRunBuildFailsFastOnMissingArchiveSpec(t *testing.T) {
	coord, reg := newTestCoordinator(t, `
web:
  version: "1.0.0"
`, 1)
	img, _ := reg.GetImage("web")

	fut, err := coord.GetOrRunBuild(context.Background(), img, "1.0.0")
	if err != nil {
		t.Fatalf("GetOrRunBuild returned error: %v", err)
	}

	_, err = fut.Result()
	if err == nil {
		t.Fatalf("expected build to fail because the image has no archive spec")
	}
}

func TestRunBuildRejectsNonCurrentVersion(t *testing.T) {
	coord, reg := newTestCoordinator(t, `
web:
  version: "2.0.0"
`, 1)
	img, _ := reg.GetImage("web")

	fut, err := coord.GetOrRunBuild(context.Background(), img, "1.0.0")
	if err != nil {
		t.Fatalf("GetOrRunBuild returned error: %v", err)
	}

	_, err = fut.Result()
	if err == nil {
		t.Fatalf("expected an error requesting a non-current version")
	}
}

func TestRunAllReturnsOnceAllPendingBuildsFinish(t *testing.T) {
	coord, reg := newTestCoordinator(t, `
web:
  version: "1.0.0"
other:
  version: "1.0.0"
`, 2)

	for _, name := range []string{"web", "other"} {
		img, _ := reg.GetImage(name)
		if _, err := coord.GetOrRunBuild(context.Background(), img, ""); err != nil {
			t.Fatalf("GetOrRunBuild(%s) returned error: %v", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := coord.RunAll(ctx); err != nil {
		t.Fatalf("RunAll returned error: %v", err)
	}
}

func TestDoneCallbackInvokedAfterEachBuild(t *testing.T) {
	coord, reg := newTestCoordinator(t, `
web:
  version: "1.0.0"
`, 1)
	img, _ := reg.GetImage("web")

	called := make(chan struct{}, 1)
	coord.AddBuildDoneCallback(func(img *catalog.Image, version string, fut *Future) {
		called <- struct{}{}
	})

	fut, err := coord.GetOrRunBuild(context.Background(), img, "1.0.0")
	if err != nil {
		t.Fatalf("GetOrRunBuild returned error: %v", err)
	}
	<-fut.Done()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatalf("expected the done callback to be invoked")
	}
}
