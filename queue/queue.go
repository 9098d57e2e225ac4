// Package queue implements the merge-queue controller, the system's
// heart: it dispatches parsed chat commands and webhook resume events
// through authorization, policy, and CI-readiness, and owns the only
// process-wide mutex, grounded on
// original_source/src/webhook.rs's handle_comment/checks_and_status.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/polka-labs/marge/boterror"
	"github.com/polka-labs/marge/commands"
	"github.com/polka-labs/marge/companionref"
	"github.com/polka-labs/marge/ghclient"
	"github.com/polka-labs/marge/ready"
	"github.com/polka-labs/marge/store"
)

type githubClient interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*ghclient.PullRequest, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	Merge(ctx context.Context, owner, repo string, number int, sha string) error
	LatestRelease(ctx context.Context, owner, repo string) (ghclient.Release, error)
	Tag(ctx context.Context, owner, repo, tagName string) (ghclient.Tag, error)
	SubstrateCommitFromCompanionCommit(ctx context.Context, owner, companionRepo, companionCommit string) (string, error)
	DiffURL(owner, repo, base, head string) string
}

type authzService interface {
	CheckOrgMembership(ctx context.Context, login string, issue boterror.Issue) error
}

type policyEngine interface {
	MergeAllowed(ctx context.Context, owner, repo string, pr *ghclient.PullRequest, requester string) error
}

type readyEvaluator interface {
	Evaluate(ctx context.Context, owner, repo, commit string) (ready.State, error)
	EvaluateFromWebhook(ctx context.Context, owner, repo, commit string) (ready.State, error)
}

type intentStore interface {
	Put(commit string, in store.Intent) error
	Get(commit string) (store.Intent, bool, error)
	Delete(commit string) error
}

type companionPipeline interface {
	Run(ctx context.Context, owner, repo, contributorOwner, contributorRepo, contributorBranch string) (string, error)
	Rebase(ctx context.Context, owner, repo, contributorOwner, contributorRepo, contributorBranch string) error
}

type burninPipeline interface {
	Run(ctx context.Context, owner, repo string, number int, tomlBlock string) error
}

// Config names the repositories the controller treats specially. The
// staging-repo names are configurable rather than hardcoded literals.
type Config struct {
	BaseRepoName         string
	BaseRepoStagingName  string
	CompanionRepoName    string
	CompanionStagingName string
	RequesterLogin       string
}

// Controller orchestrates command dispatch and webhook resume. mu
// serializes every call into Controller so duplicate or out-of-order
// status webhooks can never race a double merge.
type Controller struct {
	mu sync.Mutex

	gh        githubClient
	authz     authzService
	policy    policyEngine
	ready     readyEvaluator
	store     intentStore
	companion companionPipeline
	burnin    burninPipeline
	cfg       Config
	log       *logrus.Entry
}

func NewController(
	gh githubClient,
	authz authzService,
	policy policyEngine,
	readyEval readyEvaluator,
	st intentStore,
	companionPipe companionPipeline,
	burninPipe burninPipeline,
	cfg Config,
	log *logrus.Entry,
) *Controller {
	if cfg.BaseRepoName == "" {
		cfg.BaseRepoName = "substrate"
	}
	if cfg.CompanionRepoName == "" {
		cfg.CompanionRepoName = "polkadot"
	}
	if cfg.RequesterLogin == "" {
		cfg.RequesterLogin = "marge[bot]"
	}
	return &Controller{
		gh: gh, authz: authz, policy: policy, ready: readyEval, store: st,
		companion: companionPipe, burnin: burninPipe, cfg: cfg, log: log,
	}
}

func (c *Controller) isBaseRepo(repo string) bool {
	return repo == c.cfg.BaseRepoName || (c.cfg.BaseRepoStagingName != "" && repo == c.cfg.BaseRepoStagingName)
}

func (c *Controller) isCompanionRepo(repo string) bool {
	return repo == c.cfg.CompanionRepoName || (c.cfg.CompanionStagingName != "" && repo == c.cfg.CompanionStagingName)
}

func (c *Controller) fetchPR(ctx context.Context, owner, repo string, number int) (*ghclient.PullRequest, error) {
	pr, err := c.gh.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), owner, repo, number)
	}
	return pr, nil
}

func (c *Controller) commentBestEffort(ctx context.Context, owner, repo string, number int, body string) {
	if err := c.gh.CreateComment(ctx, owner, repo, number, body); err != nil {
		c.log.WithError(err).Warn("failed to post comment")
	}
}

// HandleComment classifies body and, if it expresses a command, dispatches
// it. A non-command body is a silent no-op, matching the dispatcher's
// "anything else yields None" rule.
func (c *Controller) HandleComment(ctx context.Context, owner, repo string, number int, requester, body string) error {
	cmd := commands.Parse(body)
	if cmd.Kind == commands.None {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	issue := boterror.Issue{Owner: owner, Repo: repo, Number: number}

	switch cmd.Kind {
	case commands.MergeNormal:
		return c.handleMergeNormal(ctx, owner, repo, number, requester, issue)
	case commands.MergeForce:
		return c.handleMergeForce(ctx, owner, repo, number, requester, issue)
	case commands.MergeCancel:
		return c.handleMergeCancel(ctx, owner, repo, number, issue)
	case commands.CompareRelease:
		return c.handleCompareRelease(ctx, owner, repo, number, issue)
	case commands.Rebase:
		return c.handleRebase(ctx, owner, repo, number, issue)
	case commands.Burnin:
		return c.handleBurnin(ctx, owner, repo, number, requester, cmd.BurninTOML, issue)
	}
	return nil
}

func (c *Controller) handleMergeNormal(ctx context.Context, owner, repo string, number int, requester string, issue boterror.Issue) error {
	if err := c.authz.CheckOrgMembership(ctx, requester, issue); err != nil {
		return err
	}
	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if err := c.policy.MergeAllowed(ctx, owner, repo, pr, requester); err != nil {
		return err
	}

	state, err := c.ready.Evaluate(ctx, owner, repo, pr.Head.SHA)
	if err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), owner, repo, number)
	}

	switch state {
	case ready.Ready:
		c.commentBestEffort(ctx, owner, repo, number, "Trying merge.")
		if err := c.doMerge(ctx, owner, repo, pr); err != nil {
			return err
		}
		return c.runCompanionPipeline(ctx, owner, repo, pr)
	case ready.Failed:
		return boterror.ChecksFailed(issue, pr.Head.SHA)
	default: // Pending
		in := store.Intent{Owner: owner, Repo: repo, Number: number, HTMLURL: pr.HTMLURL, Requester: requester}
		if err := c.store.Put(pr.Head.SHA, in); err != nil {
			return boterror.WithIssue(boterror.Wrap(boterror.KindDB, err), owner, repo, number)
		}
		c.commentBestEffort(ctx, owner, repo, number, "Waiting for commit status.")
		return nil
	}
}

func (c *Controller) handleMergeForce(ctx context.Context, owner, repo string, number int, requester string, issue boterror.Issue) error {
	if err := c.authz.CheckOrgMembership(ctx, requester, issue); err != nil {
		return err
	}
	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if err := c.policy.MergeAllowed(ctx, owner, repo, pr, requester); err != nil {
		return err
	}
	c.commentBestEffort(ctx, owner, repo, number, "Trying merge.")
	if err := c.doMerge(ctx, owner, repo, pr); err != nil {
		return err
	}
	return c.runCompanionPipeline(ctx, owner, repo, pr)
}

func (c *Controller) handleMergeCancel(ctx context.Context, owner, repo string, number int, issue boterror.Issue) error {
	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if err := c.store.Delete(pr.Head.SHA); err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindDB, err), owner, repo, number)
	}
	c.commentBestEffort(ctx, owner, repo, number, "Merge cancelled.")
	return nil
}

func (c *Controller) handleCompareRelease(ctx context.Context, owner, repo string, number int, issue boterror.Issue) error {
	if !c.isCompanionRepo(repo) {
		return nil
	}
	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	rel, err := c.gh.LatestRelease(ctx, owner, repo)
	if err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), owner, repo, number)
	}
	tag, err := c.gh.Tag(ctx, owner, repo, rel.TagName)
	if err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), owner, repo, number)
	}
	releaseCommit, releaseErr := c.gh.SubstrateCommitFromCompanionCommit(ctx, owner, repo, tag.ObjectSHA)
	branchCommit, branchErr := c.gh.SubstrateCommitFromCompanionCommit(ctx, owner, repo, pr.Head.SHA)
	if releaseErr != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, releaseErr), owner, repo, number)
	}
	if branchErr != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, branchErr), owner, repo, number)
	}
	link := c.gh.DiffURL(owner, c.cfg.BaseRepoName, releaseCommit, branchCommit)
	c.commentBestEffort(ctx, owner, repo, number, link)
	return nil
}

func (c *Controller) handleRebase(ctx context.Context, owner, repo string, number int, issue boterror.Issue) error {
	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	c.commentBestEffort(ctx, owner, repo, number, "Rebasing.")
	if err := c.companion.Rebase(ctx, owner, repo, pr.Head.RepoOwner, pr.Head.RepoName, pr.Head.Ref); err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindGeneric, err), owner, repo, number)
	}
	return nil
}

func (c *Controller) handleBurnin(ctx context.Context, owner, repo string, number int, requester, toml string, issue boterror.Issue) error {
	if err := c.authz.CheckOrgMembership(ctx, requester, issue); err != nil {
		return err
	}
	if err := c.burnin.Run(ctx, owner, repo, number, toml); err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindGeneric, err), owner, repo, number)
	}
	return nil
}

// HandleLabel implements the labeled handler supplemented in
// SPEC_FULL.md §4.9: an A1-needsburnin label triggers a usage hint.
func (c *Controller) HandleLabel(ctx context.Context, owner, repo string, number int, labelName, addedBy string) error {
	const watchedLabel = "A1-needsburnin"
	if labelName != watchedLabel {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pr, err := c.fetchPR(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf(burninHintTemplate, addedBy, owner, pr.HTMLURL, pr.Head.SHA, addedBy)
	if err := c.gh.CreateComment(ctx, owner, repo, number, msg); err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), owner, repo, number)
	}
	return nil
}

const burninHintTemplate = `@%s to request a burn-in test for this PR, please submit a comment in the format below.

Only members of the Github organization %s are authorized to perform burn-in tests.

bot burnin
` + "```toml" + `
pull_request = %q
commit_sha = %q
requested_by = %q
` + "```"

// HandleStatusOrCheck resumes a pending merge intent on a status or
// completed check-run event.
func (c *Controller) HandleStatusOrCheck(ctx context.Context, commit string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, found, err := c.store.Get(commit)
	if err != nil {
		return boterror.Wrap(boterror.KindDB, err)
	}
	if !found {
		return nil
	}
	issue := boterror.Issue{Owner: in.Owner, Repo: in.Repo, Number: in.Number}

	pr, err := c.fetchPR(ctx, in.Owner, in.Repo, in.Number)
	if err != nil {
		return err
	}
	if pr.Head.SHA != commit {
		_ = c.store.Delete(commit)
		return boterror.HeadChanged(issue, commit)
	}

	state, err := c.ready.EvaluateFromWebhook(ctx, in.Owner, in.Repo, commit)
	if err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindHTTP, err), in.Owner, in.Repo, in.Number)
	}

	switch state {
	case ready.Ready:
		if err := c.doMerge(ctx, in.Owner, in.Repo, pr); err != nil {
			return err
		}
		if err := c.store.Delete(commit); err != nil {
			c.log.WithError(err).Warn("failed to delete intent after successful merge")
		}
		return c.runCompanionPipeline(ctx, in.Owner, in.Repo, pr)
	case ready.Failed:
		_ = c.store.Delete(commit)
		return boterror.ChecksFailed(issue, commit)
	default: // Pending: wait for the next webhook.
		return nil
	}
}

func (c *Controller) doMerge(ctx context.Context, owner, repo string, pr *ghclient.PullRequest) error {
	issue := boterror.Issue{Owner: owner, Repo: repo, Number: pr.Number}
	if err := c.gh.Merge(ctx, owner, repo, pr.Number, pr.Head.SHA); err != nil {
		return boterror.Merge(issue, pr.Head.SHA, err)
	}
	return nil
}

// runCompanionPipeline is a no-op unless the just-merged pull request
// belongs to a base repository and its body names a companion.
func (c *Controller) runCompanionPipeline(ctx context.Context, owner, repo string, pr *ghclient.PullRequest) error {
	if !c.isBaseRepo(repo) {
		return nil
	}
	ref, ok := companionref.Parse(pr.Body)
	if !ok {
		c.log.Debug("no companion found")
		return nil
	}
	issue := boterror.Issue{Owner: ref.Owner, Repo: ref.Repo, Number: ref.Number}

	compPR, err := c.fetchPR(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return boterror.Companion(issue, err)
	}

	newSHA, err := c.companion.Run(ctx, ref.Owner, ref.Repo, compPR.Head.RepoOwner, compPR.Head.RepoName, compPR.Head.Ref)
	if err != nil {
		return boterror.Companion(issue, err)
	}

	in := store.Intent{Owner: ref.Owner, Repo: ref.Repo, Number: ref.Number, HTMLURL: compPR.HTMLURL, Requester: c.cfg.RequesterLogin}
	if err := c.store.Put(newSHA, in); err != nil {
		return boterror.WithIssue(boterror.Wrap(boterror.KindDB, err), ref.Owner, ref.Repo, ref.Number)
	}
	c.commentBestEffort(ctx, ref.Owner, ref.Repo, ref.Number, "Waiting for commit status.")
	return nil
}
