// Package processinfo loads the per-pull-request ownership declaration
// ("process info") used by the policy engine's final approval fallback.
// It is grounded on repoowners/repoowners.go's
// Client: a load-on-demand fetch cached per (repo, head sha), backed here
// by a single file read through the GitHub contents API rather than a
// full git clone, since a pull request's process file is small and the
// core never needs the rest of the tree.
package processinfo

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Path is the well-known location of the ownership file in a repository,
// analogous to an OWNERS file.
const Path = "process.yml"

// Info declares project ownership for a pull request.
type Info struct {
	// Owner is the project owner's GitHub login. Empty means the file was
	// absent or declared no owner.
	Owner string `yaml:"owner"`
	// Delegates may also approve on the owner's behalf.
	Delegates []string `yaml:"delegates"`
}

// IsOwner reports whether login is the declared owner or a delegate.
func (i Info) IsOwner(login string) bool {
	if login == "" {
		return false
	}
	if i.Owner == login {
		return true
	}
	for _, d := range i.Delegates {
		if d == login {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no ownership was declared at all, distinguishing
// "file present but declares nothing" / "file absent" from "file present
// and malformed": genuine emptiness maps to boterror.KindProcessInfo,
// lookup/parse errors map to boterror.KindProcessFile.
func (i Info) IsEmpty() bool {
	return i.Owner == "" && len(i.Delegates) == 0
}

// githubClient is the narrow interface this package needs, following the
// teacher's per-package interface convention (repoowners.go's
// githubClient, plugins/close's githubClient).
type githubClient interface {
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, bool, error)
}

type cacheKey struct {
	owner, repo, sha string
}

// Client loads and caches Info per (owner, repo, head sha), mirroring
// repoowners.Client's cache keyed on the current ref's sha so a PR whose
// head hasn't moved never re-fetches.
type Client struct {
	gh githubClient

	mu    sync.Mutex
	cache map[cacheKey]Info
}

func NewClient(gh githubClient) *Client {
	return &Client{gh: gh, cache: make(map[cacheKey]Info)}
}

// Load fetches (or returns the cached) Info for the given commit.
func (c *Client) Load(ctx context.Context, owner, repo, sha string) (Info, error) {
	key := cacheKey{owner, repo, sha}

	c.mu.Lock()
	if info, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	content, found, err := c.gh.GetFileContent(ctx, owner, repo, Path, sha)
	if err != nil {
		return Info{}, fmt.Errorf("loading %s for %s/%s@%s: %w", Path, owner, repo, sha, err)
	}
	var info Info
	if found {
		if err := yaml.Unmarshal([]byte(content), &info); err != nil {
			return Info{}, fmt.Errorf("parsing %s for %s/%s@%s: %w", Path, owner, repo, sha, err)
		}
	}

	c.mu.Lock()
	c.cache[key] = info
	c.mu.Unlock()
	return info, nil
}
