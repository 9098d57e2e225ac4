// Package companion implements the companion-repository update pipeline,
// grounded on original_source/src/companion.rs's
// update_companion_repository: clone-or-reuse, bind the contributor's
// remote, fetch and reset the contributor branch, merge the base branch
// in, regenerate the dependency lockfile, and push the result back
// through the hosting platform's git-data API so the resulting commit is
// attributed to the bot identity.
package companion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/polka-labs/marge/ghclient"
	"github.com/polka-labs/marge/gitutil"
)

type githubClient interface {
	CreateTree(ctx context.Context, owner, repo string, entries []ghclient.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, tree, parent string) (string, error)
	UpdateRef(ctx context.Context, owner, repo, branch, sha string) error
}

// Config carries the pipeline's tunables, pulled from the process
// environment.
type Config struct {
	// WorkDir is the parent directory under which repository clones live,
	// one subdirectory per repository name (the owner is not part of the path).
	WorkDir string
	// Token authenticates the clone/fetch/push URLs.
	Token string
	// StagingRepoName, when it matches Repo, selects LockfilePinStaging
	// instead of LockfilePin.
	StagingRepoName    string
	LockfilePin        string
	LockfilePinStaging string
}

// Pipeline runs the companion update for a single (owner, repo,
// contributor branch) triple.
type Pipeline struct {
	gh  githubClient
	cfg Config
	log *logrus.Entry
}

func NewPipeline(gh githubClient, cfg Config, log *logrus.Entry) *Pipeline {
	return &Pipeline{gh: gh, cfg: cfg, log: log}
}

// gitRunner wraps a gitutil.Runner so every call site reads as a git
// subcommand instead of repeating the "git" executable name everywhere.
type gitRunner struct {
	*gitutil.Runner
}

func newGitRunner(dir string, log *logrus.Entry, secrets ...string) gitRunner {
	return gitRunner{gitutil.New(dir, log, secrets...)}
}

func (g gitRunner) git(ctx context.Context, args ...string) (string, error) {
	return g.Run(ctx, "git", args...)
}

func (g gitRunner) gitQuiet(ctx context.Context, args ...string) (string, error) {
	return g.RunQuiet(ctx, "git", args...)
}

// Run executes the pipeline against owner/repo, binding the contributor's
// fork (contributorOwner/contributorRepo) and tracking contributorBranch.
// It returns the new head commit id: either the original HEAD (no lockfile
// change was needed) or the sha of the bot-authored verified commit.
func (p *Pipeline) Run(ctx context.Context, owner, repo, contributorOwner, contributorRepo, contributorBranch string) (string, error) {
	repoDir := filepath.Join(p.cfg.WorkDir, repo)
	git := newGitRunner(repoDir, p.log, p.cfg.Token)

	if err := p.ensureClone(ctx, owner, repo, repoDir); err != nil {
		return "", fmt.Errorf("ensuring clone of %s/%s: %w", owner, repo, err)
	}

	if err := p.bindContributorRemote(ctx, git, contributorOwner, contributorRepo); err != nil {
		return "", err
	}

	if _, err := git.git(ctx, "fetch", contributorOwner, contributorBranch); err != nil {
		return "", fmt.Errorf("fetching %s/%s: %w", contributorOwner, contributorBranch, err)
	}

	// A stale local branch from a prior run is expected to fail here; the
	// original bot silences this error too (are_errors_silenced=true).
	_, _ = git.gitQuiet(ctx, "branch", "-D", contributorBranch)
	if _, err := git.git(ctx, "checkout", "--track", fmt.Sprintf("%s/%s", contributorOwner, contributorBranch)); err != nil {
		return "", fmt.Errorf("checking out %s/%s: %w", contributorOwner, contributorBranch, err)
	}

	shaBefore, err := git.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("recording baseline sha: %w", err)
	}
	shaBefore = strings.TrimSpace(shaBefore)

	if _, err := git.git(ctx, "fetch", "origin", "master"); err != nil {
		return "", fmt.Errorf("fetching origin/master: %w", err)
	}

	substrateSHA, err := git.git(ctx, "rev-parse", "origin/master")
	if err != nil {
		return "", fmt.Errorf("resolving origin/master: %w", err)
	}
	substrateSHA = strings.TrimSpace(substrateSHA)

	if _, err := git.git(ctx, "merge", "origin/master", "--no-ff", "--no-edit"); err != nil {
		if _, abortErr := git.git(ctx, "merge", "--abort"); abortErr != nil {
			return "", fmt.Errorf("merge failed and abort also failed: %w (original: %v)", abortErr, err)
		}
		return "", fmt.Errorf("merging origin/master into %s: %w", contributorBranch, err)
	}

	pin := p.cfg.LockfilePin
	if p.cfg.StagingRepoName != "" && repo == p.cfg.StagingRepoName {
		pin = p.cfg.LockfilePinStaging
	}
	if _, err := git.Run(ctx, "cargo", "update", "-vp", pin); err != nil {
		return "", fmt.Errorf("regenerating lockfile pin %s: %w", pin, err)
	}
	if _, err := git.git(ctx, "commit", "-am", fmt.Sprintf("update Substrate to %s", substrateSHA)); err != nil {
		return "", fmt.Errorf("committing lockfile update: %w", err)
	}

	return p.detectAndPush(ctx, git, contributorOwner, contributorRepo, contributorBranch, repoDir, shaBefore, substrateSHA)
}

// Rebase rebases the contributor's branch onto the base repository's
// master and force-pushes the result back to the contributor's fork.
//
// original_source/ ships no rebase.rs (only companion.rs, webhook.rs,
// local_state.rs, lib.rs, main.rs were retrieved), so this pipeline is not
// a direct port: it reuses the same clone/remote/fetch scaffolding as Run
// but finishes with a plain authenticated git push rather than the
// git-data API tree+commit+ref roundtrip, since a rebase (unlike the
// lockfile update) never needs to synthesize new file contents: it only
// replays the contributor's own commits, so there is nothing for the bot
// to author as a verified commit. Documented in DESIGN.md.
func (p *Pipeline) Rebase(ctx context.Context, owner, repo, contributorOwner, contributorRepo, contributorBranch string) error {
	repoDir := filepath.Join(p.cfg.WorkDir, repo)
	git := newGitRunner(repoDir, p.log, p.cfg.Token)

	if err := p.ensureClone(ctx, owner, repo, repoDir); err != nil {
		return fmt.Errorf("ensuring clone of %s/%s: %w", owner, repo, err)
	}
	if err := p.bindContributorRemote(ctx, git, contributorOwner, contributorRepo); err != nil {
		return err
	}
	if _, err := git.git(ctx, "fetch", contributorOwner, contributorBranch); err != nil {
		return fmt.Errorf("fetching %s/%s: %w", contributorOwner, contributorBranch, err)
	}
	_, _ = git.gitQuiet(ctx, "branch", "-D", contributorBranch)
	if _, err := git.git(ctx, "checkout", "--track", fmt.Sprintf("%s/%s", contributorOwner, contributorBranch)); err != nil {
		return fmt.Errorf("checking out %s/%s: %w", contributorOwner, contributorBranch, err)
	}
	if _, err := git.git(ctx, "fetch", "origin", "master"); err != nil {
		return fmt.Errorf("fetching origin/master: %w", err)
	}
	if _, err := git.git(ctx, "rebase", "origin/master"); err != nil {
		if _, abortErr := git.git(ctx, "rebase", "--abort"); abortErr != nil {
			return fmt.Errorf("rebase failed and abort also failed: %w (original: %v)", abortErr, err)
		}
		return fmt.Errorf("rebasing %s onto origin/master: %w", contributorBranch, err)
	}
	if _, err := git.git(ctx, "push", "--force", contributorOwner, fmt.Sprintf("HEAD:%s", contributorBranch)); err != nil {
		return fmt.Errorf("pushing rebased branch: %w", err)
	}
	return nil
}

func (p *Pipeline) ensureClone(ctx context.Context, owner, repo, repoDir string) error {
	if _, err := os.Stat(repoDir); err == nil {
		return nil
	}
	url := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", p.cfg.Token, owner, repo)
	git := newGitRunner(p.cfg.WorkDir, p.log, p.cfg.Token)
	_, err := git.git(ctx, "clone", "-v", url)
	return err
}

func (p *Pipeline) bindContributorRemote(ctx context.Context, git gitRunner, contributorOwner, contributorRepo string) error {
	if _, err := git.gitQuiet(ctx, "remote", "get-url", contributorOwner); err == nil {
		if _, err := git.git(ctx, "remote", "remove", contributorOwner); err != nil {
			return fmt.Errorf("removing stale remote %s: %w", contributorOwner, err)
		}
	}
	url := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", p.cfg.Token, contributorOwner, contributorRepo)
	if _, err := git.git(ctx, "remote", "add", contributorOwner, url); err != nil {
		return fmt.Errorf("adding remote %s: %w", contributorOwner, err)
	}
	return nil
}

// detectAndPush detects whether the lockfile update produced any changes
// and, if so, pushes a verified commit. A diff listing of a single empty
// string is treated as "no changes", not as one changed file named "". The
// verified
// commit is pushed to the contributor's own fork branch (the pull
// request's actual head ref), not to the base repository, since that is
// the ref GitHub lets the bot update on the contributor's behalf when
// "allow edits from maintainers" is enabled on the companion pull request.
// The pushed commit message embeds substrateSHA so
// ghclient.SubstrateCommitFromCompanionCommit can later recover which
// substrate commit this companion commit was built against.
func (p *Pipeline) detectAndPush(ctx context.Context, git gitRunner, contributorOwner, contributorRepo, contributorBranch, repoDir, shaBefore, substrateSHA string) (string, error) {
	out, err := git.git(ctx, "diff", "--name-only", shaBefore)
	if err != nil {
		return "", fmt.Errorf("diffing against %s: %w", shaBefore, err)
	}
	changed := strings.Split(strings.TrimSpace(out), "\n")
	if len(changed) == 0 || (len(changed) == 1 && changed[0] == "") {
		if _, err := git.git(ctx, "reset", "--hard", shaBefore); err != nil {
			return "", fmt.Errorf("resetting to %s: %w", shaBefore, err)
		}
		return shaBefore, nil
	}

	entries := make([]ghclient.TreeEntry, 0, len(changed))
	for _, path := range changed {
		fullPath := filepath.Join(repoDir, path)
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return "", fmt.Errorf("reading changed file %s: %w", path, err)
		}
		info, err := os.Stat(fullPath)
		if err != nil {
			return "", fmt.Errorf("stat-ing changed file %s: %w", path, err)
		}
		entries = append(entries, ghclient.TreeEntry{
			Path:    path,
			Content: string(content),
			Mode:    fmt.Sprintf("100%o", info.Mode().Perm()),
		})
	}

	tree, err := p.gh.CreateTree(ctx, contributorOwner, contributorRepo, entries)
	if err != nil {
		return "", fmt.Errorf("creating tree: %w", err)
	}
	message := fmt.Sprintf("merge master branch and update Substrate to %s", substrateSHA)
	commit, err := p.gh.CreateCommit(ctx, contributorOwner, contributorRepo, message, tree, shaBefore)
	if err != nil {
		return "", fmt.Errorf("creating commit: %w", err)
	}
	if err := p.gh.UpdateRef(ctx, contributorOwner, contributorRepo, "heads/"+contributorBranch, commit); err != nil {
		return "", fmt.Errorf("updating ref: %w", err)
	}
	return commit, nil
}
