package fetch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/kilnworks/kiln/internal/paths"
)

// A materialized repository.
type Checkout struct {
	Root    string // Local filesystem root of the repository contents.
	Cleanup bool   // Whether the caller owns removal of the checkout.

	// Clone directory backing Root. Differs from Root when a subdir was
	// selected; removal must target the whole clone, not the subdir.
	cloneRoot string
}

// Removes the checkout from disk. Pre-existing local paths are never
// removed.
func (c *Checkout) Remove() error {
	if !c.Cleanup {
		return nil
	}
	root := c.cloneRoot
	if root == "" {
		root = c.Root
	}
	return os.RemoveAll(root)
}

// Materializes a repository reference as a local checkout.
//
// Pre-existing local paths are used in place with cleanup disabled. Other
// references are cloned with go-git into the checkout scratch directory;
// the clone is shallow unless a ref has to be resolved. A non-empty subdir
// selects a directory inside the checkout and must not escape it.
func Fetch(ctx context.Context, repo, ref, subdir string) (*Checkout, error) {
	if info, err := os.Stat(repo); err == nil && info.IsDir() {
		root, err := filepath.Abs(repo)
		if err != nil {
			return nil, errors.Wrap(ErrFetch, err.Error())
		}

		root, err = resolveSubdir(root, subdir)
		if err != nil {
			return nil, err
		}

		slog.Debug("using local repository", "root", root)
		return &Checkout{Root: root, Cleanup: false}, nil
	}

	root, err := clone(ctx, repo, ref)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveSubdir(root, subdir)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	return &Checkout{Root: resolved, Cleanup: true, cloneRoot: root}, nil
}

// Clones a git repository into a fresh scratch directory.
//
// Without a ref the clone is shallow. With a ref the full history is
// fetched so branches, tags, and bare commits all resolve.
func clone(ctx context.Context, repo, ref string) (string, error) {
	if err := os.MkdirAll(paths.Checkouts(), paths.DefaultDirMode); err != nil {
		return "", errors.Wrap(ErrFetch, err.Error())
	}

	dir, err := os.MkdirTemp(paths.Checkouts(), "checkout-")
	if err != nil {
		return "", errors.Wrap(ErrFetch, err.Error())
	}

	opts := &git.CloneOptions{URL: repo}
	if ref == "" {
		opts.Depth = 1
	}

	slog.Info("cloning repository", "repo", repo, "ref", ref)

	r, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		return "", errors.Wrap(ErrFetch, err.Error())
	}

	if ref != "" {
		if err := checkout(r, ref); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}

	return dir, nil
}

// Checks out a ref, which may be a branch, tag, or commit hash.
func checkout(r *git.Repository, ref string) error {
	hash, err := r.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return errors.Wrapf(ErrFetch, "resolving %q: %v", ref, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return errors.Wrap(ErrFetch, err.Error())
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return errors.Wrapf(ErrFetch, "checking out %q: %v", ref, err)
	}

	return nil
}

// Resolves a subdirectory inside the checkout root.
//
// The resolved path must stay inside the root and must exist. A subdir
// that cleans to the root itself, such as ".", is the root.
func resolveSubdir(root, subdir string) (string, error) {
	if subdir == "" {
		return root, nil
	}

	resolved := filepath.Join(root, subdir)
	if resolved == root {
		return root, nil
	}
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", errors.Wrap(ErrSubdir, subdir)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", errors.Wrap(ErrSubdir, subdir)
	}

	return resolved, nil
}
