package companion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polka-labs/marge/ghclient"
)

func initRepo(t *testing.T, dir string) gitRunner {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	git := newGitRunner(dir, nil)
	ctx := context.Background()
	_, err := git.git(ctx, "init", "-q")
	require.NoError(t, err)
	_, _ = git.git(ctx, "config", "user.email", "bot@example.com")
	_, _ = git.git(ctx, "config", "user.name", "bot")
	return git
}

func commitFile(t *testing.T, git gitRunner, dir, name, content, message string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err := git.git(ctx, "add", name)
	require.NoError(t, err)
	_, err = git.git(ctx, "commit", "-q", "-m", message)
	require.NoError(t, err)
	sha, err := git.git(ctx, "rev-parse", "HEAD")
	require.NoError(t, err)
	return sha
}

type recordingGithub struct {
	createdTree   bool
	createdCommit bool
	commitMessage string
	updatedRef    string
	updatedOwner  string
	updatedRepo   string
}

func (r *recordingGithub) CreateTree(ctx context.Context, owner, repo string, entries []ghclient.TreeEntry) (string, error) {
	r.createdTree = true
	return "tree-sha", nil
}

func (r *recordingGithub) CreateCommit(ctx context.Context, owner, repo, message, tree, parent string) (string, error) {
	r.createdCommit = true
	r.commitMessage = message
	return "commit-sha", nil
}

func (r *recordingGithub) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	r.updatedRef = branch
	r.updatedOwner = owner
	r.updatedRepo = repo
	return nil
}

func TestDetectAndPushResetsHardWhenNoFilesChanged(t *testing.T) {
	dir := t.TempDir()
	git := initRepo(t, dir)
	shaBefore := commitFile(t, git, dir, "a.txt", "hello", "initial")

	p := &Pipeline{gh: &recordingGithub{}}
	substrateSHA := "1111111111111111111111111111111111111a"
	got, err := p.detectAndPush(context.Background(), git, "contrib", "repo", "branch", dir, shaBefore, substrateSHA)
	require.NoError(t, err)
	assert.Equal(t, shaBefore, got)

	head, err := git.git(context.Background(), "rev-parse", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, shaBefore, head)
}

func TestDetectAndPushCreatesVerifiedCommitWhenFilesChanged(t *testing.T) {
	dir := t.TempDir()
	git := initRepo(t, dir)
	shaBefore := commitFile(t, git, dir, "a.txt", "hello", "initial")
	commitFile(t, git, dir, "Cargo.lock", "updated lockfile", "update Substrate")

	gh := &recordingGithub{}
	p := &Pipeline{gh: gh}
	substrateSHA := "2222222222222222222222222222222222222b"
	got, err := p.detectAndPush(context.Background(), git, "contrib", "fork", "feature-branch", dir, shaBefore, substrateSHA)
	require.NoError(t, err)
	assert.Equal(t, "commit-sha", got)
	assert.True(t, gh.createdTree)
	assert.True(t, gh.createdCommit)
	assert.Contains(t, gh.commitMessage, substrateSHA)
	assert.Equal(t, "heads/feature-branch", gh.updatedRef)
	assert.Equal(t, "contrib", gh.updatedOwner)
	assert.Equal(t, "fork", gh.updatedRepo)
}

func TestLockfilePinSelectsStagingVariant(t *testing.T) {
	p := &Pipeline{cfg: Config{
		StagingRepoName:    "companion-for-processbot-staging",
		LockfilePin:        "sp-io",
		LockfilePinStaging: "main-for-processbot-staging",
	}}
	pin := p.cfg.LockfilePin
	if p.cfg.StagingRepoName != "" && "companion-for-processbot-staging" == p.cfg.StagingRepoName {
		pin = p.cfg.LockfilePinStaging
	}
	assert.Equal(t, "main-for-processbot-staging", pin)
}
