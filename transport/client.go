// Package transport performs remote git operations for the cache using
// the go-git wire protocol implementation. all failures are classified
// into kinds so callers can decide between retrying, trying another
// remote url or giving up.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/utilitywarehouse/git-cache/auth"
	"github.com/utilitywarehouse/git-cache/internal/utils"
)

const fetchMarkerFile = "FETCH_HEAD"

// fetch everything so a later checkout can switch to any remote ref
var fetchRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/remotes/origin/*",
	"+refs/tags/*:refs/tags/*",
}

// Client performs clone, fetch and checkout operations on working-tree
// clones. credentials are resolved per operation from the auth provider
// based on the remote url scheme.
type Client struct {
	auth *auth.Provider
	log  *slog.Logger
}

func NewClient(authProvider *auth.Provider, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{auth: authProvider, log: log}
}

// ShallowClone creates a depth-1 single-branch clone of url at dest and
// checks out ref (remote default branch if empty). dest must not exist.
// a failed clone removes the partial dest dir before returning.
func (c *Client) ShallowClone(ctx context.Context, url, dest, ref string) error {
	am, err := c.authFor(ctx, url)
	if err != nil {
		return err
	}

	opts := &gogit.CloneOptions{
		URL:          url,
		Auth:         am,
		Depth:        1,
		SingleBranch: true,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}

	c.log.Log(ctx, -8, "cloning repository", "url", Redact(url), "dest", dest, "ref", ref)

	_, err = gogit.PlainCloneContext(ctx, dest, false, opts)
	if err != nil && ref != "" {
		// requested ref may be a tag or commit hash rather than a
		// branch, clone the default branch and switch afterwards
		if rerr := utils.ReCreate(dest); rerr != nil {
			return rerr
		}
		opts.ReferenceName = ""
		opts.SingleBranch = false
		_, err = gogit.PlainCloneContext(ctx, dest, false, opts)
		if err == nil {
			if ferr := c.Fetch(ctx, dest, url); ferr != nil {
				os.RemoveAll(dest)
				return ferr
			}
			if cerr := c.Checkout(ctx, dest, ref); cerr != nil {
				os.RemoveAll(dest)
				return cerr
			}
		}
	}
	if err != nil {
		os.RemoveAll(dest)
		return classify(url, err)
	}

	return c.markFetched(dest, url)
}

// Fetch updates all remote branches and tags of the clone at dir from
// the given url. an already up to date clone is a success.
func (c *Client) Fetch(ctx context.Context, dir, url string) error {
	am, err := c.authFor(ctx, url)
	if err != nil {
		return err
	}

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("unable to open repo at %s err:%w", dir, err)
	}

	// anonymous remote so fallback urls can differ from the cloned
	// origin url
	remote, err := repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: "anonymous",
		URLs: []string{url},
	})
	if err != nil {
		return fmt.Errorf("unable to create anonymous remote err:%w", err)
	}

	c.log.Log(ctx, -8, "fetching repository", "url", Redact(url), "dir", dir)

	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		Auth:     am,
		RefSpecs: fetchRefSpecs,
		Force:    true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return classify(url, err)
	}

	return c.markFetched(dir, url)
}

// Checkout switches the working tree at dir to ref. ref is resolved as
// local branch, then remote branch, then tag or revision. a ref that
// resolves nowhere is a ref-not-found error.
func (c *Client) Checkout(ctx context.Context, dir, ref string) error {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("unable to open repo at %s err:%w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("unable to get worktree err:%w", err)
	}

	c.log.Log(ctx, -8, "checking out ref", "dir", dir, "ref", ref)

	// local branch
	if _, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true); err == nil {
		return wt.Checkout(&gogit.CheckoutOptions{
			Branch: plumbing.NewBranchReferenceName(ref),
			Force:  true,
		})
	}

	// remote branch, create a matching local branch so HEAD reflects
	// the requested ref name
	if rRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true); err == nil {
		branchRef := plumbing.NewBranchReferenceName(ref)
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, rRef.Hash())); err != nil {
			return fmt.Errorf("unable to create local branch %s err:%w", ref, err)
		}
		return wt.Checkout(&gogit.CheckoutOptions{Branch: branchRef, Force: true})
	}

	// tag, commit hash or any other revision
	for _, rev := range []string{ref, "origin/" + ref} {
		if hash, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return wt.Checkout(&gogit.CheckoutOptions{Hash: *hash, Force: true})
		}
	}

	return &Error{
		Kind: KindRefNotFound,
		URL:  dir,
		Err:  fmt.Errorf("ref %q not found as branch, tag or revision", ref),
	}
}

// HeadMatches reports whether the working tree at dir has ref checked
// out. an empty ref matches any checkout. a ref matches when it is the
// HEAD branch name, or when it resolves to the HEAD commit (tags,
// hashes and hash prefixes).
func (c *Client) HeadMatches(dir, ref string) (bool, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return false, fmt.Errorf("unable to open repo at %s err:%w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return false, fmt.Errorf("unable to read HEAD err:%w", err)
	}

	if ref == "" {
		return true, nil
	}

	if head.Name().IsBranch() && head.Name().Short() == ref {
		return true, nil
	}

	// detached checkouts, compare commits
	if hash, err := repo.ResolveRevision(plumbing.Revision(ref)); err == nil && *hash == head.Hash() {
		return true, nil
	}
	if len(ref) >= 7 && strings.HasPrefix(head.Hash().String(), strings.ToLower(ref)) {
		return true, nil
	}

	return false, nil
}

// IsRepository reports whether dir holds a structurally valid clone.
func (c *Client) IsRepository(dir string) bool {
	_, err := gogit.PlainOpen(dir)
	return err == nil
}

// Head returns the symbolic name (empty when detached) and commit hash
// of the clone's HEAD.
func (c *Client) Head(dir string) (string, string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", "", fmt.Errorf("unable to open repo at %s err:%w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("unable to read HEAD err:%w", err)
	}

	name := ""
	if head.Name().IsBranch() {
		name = head.Name().Short()
	}
	return name, head.Hash().String(), nil
}

// Ref is a branch or tag of a cached clone.
type Ref struct {
	Name string
	Hash string
	Type string // "branch" or "tag"
}

// ListRefs returns the branches and tags known to the clone at dir,
// remote tracking branches included.
func (c *Client) ListRefs(dir string) ([]Ref, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to open repo at %s err:%w", dir, err)
	}

	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("unable to list references err:%w", err)
	}

	var refs []Ref
	seen := map[string]bool{}
	err = iter.ForEach(func(r *plumbing.Reference) error {
		var ref Ref
		switch {
		case r.Name().IsBranch():
			ref = Ref{Name: r.Name().Short(), Hash: r.Hash().String(), Type: "branch"}
		case r.Name().IsRemote():
			name := strings.TrimPrefix(r.Name().Short(), "origin/")
			if name == "HEAD" {
				return nil
			}
			ref = Ref{Name: name, Hash: r.Hash().String(), Type: "branch"}
		case r.Name().IsTag():
			ref = Ref{Name: r.Name().Short(), Hash: r.Hash().String(), Type: "tag"}
		default:
			return nil
		}
		if seen[ref.Type+"/"+ref.Name] {
			return nil
		}
		seen[ref.Type+"/"+ref.Name] = true
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to iterate references err:%w", err)
	}

	return refs, nil
}

// LastFetchedAt returns the time of the clone's last successful remote
// sync.
func (c *Client) LastFetchedAt(dir string) (time.Time, error) {
	return LastFetched(dir)
}

// LastFetched returns the time of the clone's last successful remote
// sync, taken from the fetch marker (HEAD as fallback for clones made
// by other tools).
func LastFetched(dir string) (time.Time, error) {
	for _, name := range []string{fetchMarkerFile, "HEAD"} {
		fi, err := os.Stat(filepath.Join(dir, ".git", name))
		if err == nil {
			return fi.ModTime(), nil
		}
		if !os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("unable to stat %s err:%w", name, err)
		}
	}
	return time.Time{}, fmt.Errorf("no fetch marker or HEAD in %s", dir)
}

// markFetched records a successful remote sync by (re)writing the
// FETCH_HEAD marker, matching what the git cli maintains.
func (c *Client) markFetched(dir, url string) error {
	var content string
	if _, hash, err := c.Head(dir); err == nil {
		content = fmt.Sprintf("%s\t\t%s\n", hash, Redact(url))
	}
	path := filepath.Join(dir, ".git", fetchMarkerFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("unable to write fetch marker err:%w", err)
	}
	return nil
}

// authFor resolves the auth method for the given remote url.
func (c *Client) authFor(ctx context.Context, url string) (gittransport.AuthMethod, error) {
	if c.auth == nil {
		return nil, nil
	}

	switch {
	case strings.HasPrefix(url, "https://"):
		host, repoName := hostAndRepo(url)
		return c.auth.HTTPS(ctx, host, repoName)
	case strings.HasPrefix(url, "ssh://"):
		user := "git"
		rest := strings.TrimPrefix(url, "ssh://")
		if i := strings.Index(rest, "@"); i != -1 {
			user = rest[:i]
		}
		return c.auth.SSH(user)
	}
	return nil, nil
}

func hostAndRepo(httpsURL string) (string, string) {
	rest := strings.TrimPrefix(httpsURL, "https://")
	parts := strings.Split(rest, "/")
	host := parts[0]
	if i := strings.Index(host, ":"); i != -1 {
		host = host[:i]
	}
	repoName := strings.TrimSuffix(parts[len(parts)-1], ".git")
	return host, repoName
}
