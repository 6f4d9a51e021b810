// Package blobrepo is the client for the versioned blob repository that backs
// all persisted documents. The repository only supports whole-file reads and
// whole-file replace guarded by a revision token: the token returned by the
// last observed read or write of a path must accompany the next update to
// that path, and a create must carry no token at all.
package blobrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrNotFound reports that no file exists at the requested path.
	ErrNotFound = errors.New("blobrepo: path not found")
	// ErrConflict reports that the supplied revision token is stale (or that
	// a create raced with another writer). The caller must re-read.
	ErrConflict = errors.New("blobrepo: revision conflict")
)

// Config identifies the repository a Repo operates on. It is passed to New
// explicitly so several stores (per tenant) can coexist in one process.
type Config struct {
	Dir    string // parent directory holding the repository checkout
	Owner  string
	Name   string
	Branch string
	Author string
}

type manifest struct {
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	Branch    string `json:"branch"`
	CreatedAt string `json:"createdAt"`
}

// Repo reads and writes files of a single branch of the content repository.
// Revision tokens are git blob hashes, the same token a hosted contents API
// hands out. Writes are serialized in-process, but correctness for competing
// writers rests entirely on the revision token check.
type Repo struct {
	cfg Config
	mu  sync.Mutex
}

func New(cfg Config) (*Repo, error) {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Author == "" {
		cfg.Author = "OpenLearn Hub"
	}
	r := &Repo{cfg: cfg}
	if err := r.ensureRepo(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) path() string {
	return filepath.Join(r.cfg.Dir, r.cfg.Owner, r.cfg.Name)
}

func (r *Repo) ensureRepo() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.path()
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(manifest{
		Owner:     r.cfg.Owner,
		Name:      r.cfg.Name,
		Branch:    r.cfg.Branch,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal repo manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "manifest.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write repo manifest: %w", err)
	}
	if _, err := worktree.Add("manifest.json"); err != nil {
		return fmt.Errorf("git add repo manifest: %w", err)
	}
	hash, err := worktree.Commit("Initialize content repository", &git.CommitOptions{
		Author: r.signature(),
	})
	if err != nil {
		return fmt.Errorf("commit repo manifest: %w", err)
	}
	branchRef := plumbing.NewBranchReferenceName(r.cfg.Branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
		return fmt.Errorf("set branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return nil
}

// GetContent returns the bytes stored at path on the configured branch along
// with the revision token needed to replace them. A missing file reports
// ErrNotFound.
func (r *Repo) GetContent(ctx context.Context, path string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.headFile(path)
	if err != nil {
		return nil, "", err
	}
	content, err := file.Contents()
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return []byte(content), file.Hash.String(), nil
}

// PutContent replaces the file at path with data in a single commit. An empty
// revision creates the file; a non-empty revision must equal the blob hash
// currently at the path or the write fails with ErrConflict. The new revision
// token is returned.
func (r *Repo) PutContent(ctx context.Context, path string, data []byte, message, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("invalid path %q", path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := ""
	file, err := r.headFile(path)
	switch {
	case err == nil:
		current = file.Hash.String()
	case errors.Is(err, ErrNotFound):
	default:
		return "", err
	}
	if revision != current {
		return "", fmt.Errorf("%w: path %s", ErrConflict, path)
	}

	next := plumbing.ComputeHash(plumbing.BlobObject, data).String()
	if next == current {
		// Identical content would produce an empty commit.
		return current, nil
	}

	repo, err := git.PlainOpen(r.path())
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	if err := r.checkoutBranch(repo); err != nil {
		return "", err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	target := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs for %s: %w", path, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := worktree.Add(path); err != nil {
		return "", fmt.Errorf("git add %s: %w", path, err)
	}
	if message == "" {
		message = fmt.Sprintf("Update %s", path)
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: r.signature()}); err != nil {
		return "", fmt.Errorf("commit %s: %w", path, err)
	}
	return next, nil
}

// History returns up to limit commit summaries for the configured branch,
// newest first.
func (r *Repo) History(ctx context.Context, limit int) ([]CommitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, err := git.PlainOpen(r.path())
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(r.cfg.Branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", r.cfg.Branch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commit *object.Commit) error {
		items = append(items, CommitInfo{
			Hash:      commit.Hash.String()[:7],
			Message:   commit.Message,
			Author:    commit.Author.Name,
			CreatedAt: commit.Author.When,
		})
		if limit > 0 && len(items) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// CommitInfo is a single entry of the repository history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

var errStopIteration = errors.New("stop iteration")

func (r *Repo) headFile(path string) (*object.File, error) {
	repo, err := git.PlainOpen(r.path())
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(r.cfg.Branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", r.cfg.Branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("load %s from commit: %w", path, err)
	}
	return file, nil
}

func (r *Repo) checkoutBranch(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	branchRef := plumbing.NewBranchReferenceName(r.cfg.Branch)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", r.cfg.Branch, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", r.cfg.Branch, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", r.cfg.Branch, err)
	}
	return nil
}

func (r *Repo) signature() *object.Signature {
	return &object.Signature{
		Name:  r.cfg.Author,
		Email: fmt.Sprintf("%s@hub.openlearn.dev", sanitizeEmail(r.cfg.Author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "service"
	}
	return string(out)
}
