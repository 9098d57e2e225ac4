package ghclient

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Client is the bot's sole entry point into the GitHub REST and git-data
// APIs, grounded on github/client.go's Client but backed by go-github.
type Client struct {
	gh  *github.Client
	Log *logrus.Entry
}

// NewClient builds a Client authenticated as the bot, following the same
// token-in-transport convention as golang.org/x/oauth2's documented usage
// (already a teacher dependency).
func NewClient(ctx context.Context, token string, log *logrus.Entry) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Client{gh: github.NewClient(tc), Log: log}
}

// NewClientWithToken builds a Client authenticated with a distinct token,
// used for the CI-request repository that receives burn-in request files.
func NewClientWithToken(ctx context.Context, token string, log *logrus.Entry) *Client {
	return NewClient(ctx, token, log)
}

func (c *Client) log(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Debugf(format, args...)
	}
}

// IsOrgMember reports whether login is a member of org.
func (c *Client) IsOrgMember(ctx context.Context, org, login string) (bool, error) {
	c.log("IsOrgMember(%s, %s)", org, login)
	ok, _, err := c.gh.Organizations.IsMember(ctx, org, login)
	if err != nil {
		return false, fmt.Errorf("checking org membership for %s/%s: %w", org, login, err)
	}
	return ok, nil
}

// TeamMembers lists the members of the team identified by slug within org.
func (c *Client) TeamMembers(ctx context.Context, org, slug string) ([]TeamMember, error) {
	c.log("TeamMembers(%s, %s)", org, slug)
	var out []TeamMember
	opt := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		members, resp, err := c.gh.Teams.ListTeamMembersBySlug(ctx, org, slug, opt)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s/%s: %w", org, slug, err)
		}
		for _, m := range members {
			out = append(out, TeamMember{Login: m.GetLogin()})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// GetPullRequest fetches a pull request, adapted to the narrow shape the
// core needs.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	c.log("GetPullRequest(%s, %s, %d)", owner, repo, number)
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s#%d: %w", owner, repo, number, err)
	}
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}
	out := &PullRequest{
		Number:    pr.GetNumber(),
		HTMLURL:   pr.GetHTMLURL(),
		URL:       pr.GetURL(),
		Body:      pr.GetBody(),
		Mergeable: pr.Mergeable,
		Labels:    labels,
		Head: Ref{
			Ref:       pr.GetHead().GetRef(),
			SHA:       pr.GetHead().GetSHA(),
			RepoName:  pr.GetHead().GetRepo().GetName(),
			RepoOwner: pr.GetHead().GetRepo().GetOwner().GetLogin(),
		},
		Base: Ref{
			Ref:       pr.GetBase().GetRef(),
			SHA:       pr.GetBase().GetSHA(),
			RepoName:  pr.GetBase().GetRepo().GetName(),
			RepoOwner: pr.GetBase().GetRepo().GetOwner().GetLogin(),
		},
	}
	return out, nil
}

// CombinedStatus fetches the combined commit status for ref.
func (c *Client) CombinedStatus(ctx context.Context, owner, repo, ref string) (CombinedStatus, error) {
	c.log("CombinedStatus(%s, %s, %s)", owner, repo, ref)
	st, _, err := c.gh.Repositories.GetCombinedStatus(ctx, owner, repo, ref, nil)
	if err != nil {
		return CombinedStatus{}, fmt.Errorf("fetching combined status for %s/%s@%s: %w", owner, repo, ref, err)
	}
	return CombinedStatus{State: StatusState(st.GetState())}, nil
}

// CheckRuns fetches all check-runs for ref.
func (c *Client) CheckRuns(ctx context.Context, owner, repo, ref string) ([]CheckRun, error) {
	c.log("CheckRuns(%s, %s, %s)", owner, repo, ref)
	var out []CheckRun
	opt := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		res, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opt)
		if err != nil {
			return nil, fmt.Errorf("listing check-runs for %s/%s@%s: %w", owner, repo, ref, err)
		}
		for _, r := range res.CheckRuns {
			out = append(out, CheckRun{Status: r.GetStatus(), Conclusion: r.GetConclusion()})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// Reviews lists all reviews on a pull request.
func (c *Client) Reviews(ctx context.Context, owner, repo string, number int) ([]Review, error) {
	c.log("Reviews(%s, %s, %d)", owner, repo, number)
	var out []Review
	opt := &github.ListOptions{PerPage: 100}
	for {
		revs, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opt)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, r := range revs {
			out = append(out, Review{
				Login:       r.GetUser().GetLogin(),
				State:       ReviewState(r.GetState()),
				SubmittedAt: r.GetSubmittedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// CreateComment posts an issue comment on a pull request or issue.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	c.log("CreateComment(%s, %s, %d)", owner, repo, number)
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("commenting on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// Merge merges a pull request.
func (c *Client) Merge(ctx context.Context, owner, repo string, number int, sha string) error {
	c.log("Merge(%s, %s, %d)", owner, repo, number)
	_, _, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, "", &github.PullRequestOptions{SHA: sha})
	if err != nil {
		return fmt.Errorf("merging %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// GetFileContent fetches the raw content of a file at ref, returning
// (content, found, error); found is false on a 404.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, bool, error) {
	c.log("GetFileContent(%s, %s, %s, %s)", owner, repo, path, ref)
	fc, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetching %s/%s/%s@%s: %w", owner, repo, path, ref, err)
	}
	content, err := fc.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("decoding %s/%s/%s@%s: %w", owner, repo, path, ref, err)
	}
	return content, true, nil
}

// LatestRelease fetches the most recent release of a repository.
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (Release, error) {
	rel, _, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return Release{}, fmt.Errorf("fetching latest release of %s/%s: %w", owner, repo, err)
	}
	return Release{TagName: rel.GetTagName()}, nil
}

// Tag fetches an annotated tag's target object SHA.
func (c *Client) Tag(ctx context.Context, owner, repo, tagName string) (Tag, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "tags/"+tagName)
	if err != nil {
		return Tag{}, fmt.Errorf("resolving tag ref %s on %s/%s: %w", tagName, owner, repo, err)
	}
	obj := ref.GetObject()
	if obj.GetType() == "tag" {
		tag, _, err := c.gh.Git.GetTag(ctx, owner, repo, obj.GetSHA())
		if err != nil {
			return Tag{}, fmt.Errorf("fetching tag object %s on %s/%s: %w", tagName, owner, repo, err)
		}
		return Tag{ObjectSHA: tag.GetObject().GetSHA()}, nil
	}
	return Tag{ObjectSHA: obj.GetSHA()}, nil
}

var substrateBumpRE = regexp.MustCompile(`(?i)update substrate to ([0-9a-f]{40})`)

// SubstrateCommitFromCompanionCommit walks the commit history of the
// companion repository starting from companionCommit to find the substrate
// commit it was built against, by matching the dependency-bump commit
// message produced by the companion updater (see companion.Pipeline.Run's
// detectAndPush, which embeds the resolved substrate SHA in the pushed
// commit).
func (c *Client) SubstrateCommitFromCompanionCommit(ctx context.Context, owner, companionRepo, companionCommit string) (string, error) {
	opt := &github.CommitsListOptions{SHA: companionCommit, ListOptions: github.ListOptions{PerPage: 50}}
	commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, companionRepo, opt)
	if err != nil {
		return "", fmt.Errorf("listing commits for %s/%s from %s: %w", owner, companionRepo, companionCommit, err)
	}
	for _, cm := range commits {
		m := substrateBumpRE.FindStringSubmatch(cm.GetCommit().GetMessage())
		if m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no substrate bump commit found reachable from %s", companionCommit)
}

// DiffURL builds a compare URL between two commits of a repository.
func (c *Client) DiffURL(owner, repo, base, head string) string {
	return fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s", owner, repo, base, head)
}

// CreateTree creates a git tree containing entries, rooted at baseTree.
func (c *Client) CreateTree(ctx context.Context, owner, repo string, entries []TreeEntry) (string, error) {
	var ghEntries []*github.TreeEntry
	for _, e := range entries {
		entry := e
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path:    &entry.Path,
			Mode:    &entry.Mode,
			Type:    github.String("blob"),
			Content: &entry.Content,
		})
	}
	tree, _, err := c.gh.Git.CreateTree(ctx, owner, repo, "", ghEntries)
	if err != nil {
		return "", fmt.Errorf("creating tree on %s/%s: %w", owner, repo, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a git commit pointing at tree with the given parent.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, tree, parent string) (string, error) {
	commit := &github.Commit{
		Message: &message,
		Tree:    &github.Tree{SHA: &tree},
		Parents: []*github.Commit{{SHA: &parent}},
	}
	created, _, err := c.gh.Git.CreateCommit(ctx, owner, repo, commit, nil)
	if err != nil {
		return "", fmt.Errorf("creating commit on %s/%s: %w", owner, repo, err)
	}
	return created.GetSHA(), nil
}

// UpdateRef moves branch (e.g. "heads/master") to point at sha.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/" + branch),
		Object: &github.GitObject{SHA: &sha},
	}
	_, _, err := c.gh.Git.UpdateRef(ctx, owner, repo, ref, false)
	if err != nil {
		return fmt.Errorf("updating ref %s on %s/%s: %w", branch, owner, repo, err)
	}
	return nil
}

// CreateFile creates a single new file via the contents API, used by the
// burn-in pipeline to drop a TOML request file into the CI-request repo.
func (c *Client) CreateFile(ctx context.Context, owner, repo, path, message string, content []byte, branch string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: &message,
		Content: content,
	}
	if branch != "" {
		opts.Branch = &branch
	}
	_, _, err := c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	if err != nil {
		return fmt.Errorf("creating file %s on %s/%s: %w", path, owner, repo, err)
	}
	return nil
}
