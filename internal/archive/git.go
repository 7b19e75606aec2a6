package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
)

// GitProducer is the version-control source archive producer described
// in spec.md §6: given a working tree and a revision, it canonicalizes
// the revision to a commit ID, checks out a detached copy of it
// (including submodules), and tars it up excluding the .git metadata
// directory, grounded on original_source's shelver/archive/git.py
// GitArchive. It replaces that file's shell-outs to the git binary with
// github.com/go-git/go-git/v5 (carried in from GoogleContainerTools-
// skaffold's go.mod).
type GitProducer struct {
	SourceDir string
	RepoName  string
	Revision  string

	once   sync.Once
	commit string
	hashErr error
}

var _ Producer = (*GitProducer)(nil)

// revisionHash resolves and memoizes Revision to a commit ID, mirroring
// GitArchive.revision_hash's lru_cache(1).
func (g *GitProducer) revisionHash() (string, error) {
	g.once.Do(func() {
		repo, err := git.PlainOpen(g.SourceDir)
		if err != nil {
			g.hashErr = fmt.Errorf("opening source repo %s: %w", g.SourceDir, err)
			return
		}
		hash, err := repo.ResolveRevision(plumbing.Revision(g.Revision))
		if err != nil {
			g.hashErr = fmt.Errorf("resolving revision %q: %w", g.Revision, err)
			return
		}
		g.commit = hash.String()
	})
	return g.commit, g.hashErr
}

// Commit returns the resolved commit ID, for callers (the Build Runner)
// that need to expose repo_commit/repo_rev in a template context.
func (g *GitProducer) Commit() (string, error) {
	return g.revisionHash()
}

// Basename is "<repo_name>-<commit_id>.tar.xz", matching GitArchive's
// memoized basename property.
func (g *GitProducer) Basename(ctx context.Context) (string, error) {
	commit, err := g.revisionHash()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s.tar.xz", g.RepoName, commit), nil
}

// Build checks out a detached worktree of the resolved commit (with
// submodules) into a private directory under tmpDir, tars it excluding
// .git, compresses with xz, and returns the path of the new archive file
// for the cache to rename into place.
func (g *GitProducer) Build(ctx context.Context, tmpDir string) (string, error) {
	commit, err := g.revisionHash()
	if err != nil {
		return "", err
	}

	worktreeDir := filepath.Join(tmpDir, "git-worktree-"+uuid.NewString())
	defer os.RemoveAll(worktreeDir)

	// Clone without recursing submodules: the default branch HEAD a
	// submodule-aware clone would materialize is very often not the
	// revision we're about to check out, so fetching it now would just
	// be thrown away. Submodules are synced after the checkout instead,
	// against whatever gitlink the checked-out tree actually pins.
	repo, err := git.PlainCloneContext(ctx, worktreeDir, false, &git.CloneOptions{
		URL:          g.SourceDir,
		SingleBranch: false,
	})
	if err != nil {
		return "", fmt.Errorf("cloning %s into worktree: %w", g.SourceDir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Hash:  plumbing.NewHash(commit),
		Force: true,
	}); err != nil {
		return "", fmt.Errorf("checking out %s: %w", commit, err)
	}

	if err := syncSubmodules(ctx, wt); err != nil {
		return "", fmt.Errorf("syncing submodules for %s: %w", commit, err)
	}

	archivePath := filepath.Join(tmpDir, fmt.Sprintf("%s-%s-%s.tar.xz", g.RepoName, commit, uuid.NewString()))
	if err := tarXZDir(worktreeDir, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// syncSubmodules checks out every submodule gitlink recorded in the
// worktree's current HEAD, recursively. It must run after Checkout: the
// commit we land on may pin submodules at different revisions than
// whatever the clone's default branch pointed to, so resyncing before
// checkout would leave the wrong gitlinks materialized.
func syncSubmodules(ctx context.Context, wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := sub.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
			Force:             true,
		}); err != nil {
			return fmt.Errorf("updating submodule %s: %w", sub.Config().Name, err)
		}
	}
	return nil
}

// tarXZDir writes a .tar.xz of dir (excluding the top-level .git
// directory) to destPath.
func tarXZDir(dir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return err
	}
	defer xw.Close()

	tw := tar.NewWriter(xw)
	defer tw.Close()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
}
