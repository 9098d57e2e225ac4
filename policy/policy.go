// Package policy implements the merge-allowed decision ladder, grounded
// on original_source/src/webhook.rs's merge_allowed and
// repoowners.go's ownership-predicate shape.
package policy

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/polka-labs/marge/boterror"
	"github.com/polka-labs/marge/ghclient"
	"github.com/polka-labs/marge/processinfo"
)

type githubClient interface {
	TeamMembers(ctx context.Context, org, slug string) ([]ghclient.TeamMember, error)
	Reviews(ctx context.Context, owner, repo string, number int) ([]ghclient.Review, error)
}

type processClient interface {
	Load(ctx context.Context, owner, repo, sha string) (processinfo.Info, error)
}

// Config holds the policy engine's tunables.
type Config struct {
	MinReviewers  int
	TeamLeadsSlug string
	CoreDevsSlug  string
}

// Engine decides whether a pull request is merge-allowed.
type Engine struct {
	gh      githubClient
	process processClient
	cfg     Config
	log     *logrus.Entry
}

func NewEngine(gh githubClient, process processClient, cfg Config, log *logrus.Entry) *Engine {
	if cfg.MinReviewers <= 0 {
		cfg.MinReviewers = 2
	}
	if cfg.TeamLeadsSlug == "" {
		cfg.TeamLeadsSlug = "substrateteamleads"
	}
	if cfg.CoreDevsSlug == "" {
		cfg.CoreDevsSlug = "core-devs"
	}
	return &Engine{gh: gh, process: process, cfg: cfg, log: log}
}

// MergeAllowed runs the six-step decision ladder against pr on behalf of
// requester, returning nil if the merge is allowed.
func (e *Engine) MergeAllowed(ctx context.Context, owner, repo string, pr *ghclient.PullRequest, requester string) error {
	issue := boterror.Issue{Owner: owner, Repo: repo, Number: pr.Number}

	// 1. Unmergeable.
	if pr.Mergeable == nil || !*pr.Mergeable {
		return boterror.Unmergeable(issue)
	}

	// 2. Team-lead requester always allowed.
	leads := e.teamMembersOrEmpty(ctx, owner, e.cfg.TeamLeadsSlug)
	if containsLogin(leads, requester) {
		return nil
	}

	// 3. Core-dev approvals >= threshold (1 if "insubstantial" labeled).
	threshold := e.cfg.MinReviewers
	for _, l := range pr.Labels {
		if strings.Contains(strings.ToLower(l), "insubstantial") {
			threshold = 1
			break
		}
	}
	reviews, err := e.gh.Reviews(ctx, owner, repo, pr.Number)
	if err != nil {
		e.log.WithError(err).Warn("fetching reviews failed; treating as no reviews")
		reviews = nil
	}
	coreDevs := e.teamMembersOrEmpty(ctx, owner, e.cfg.CoreDevsSlug)
	if countApprovedBy(reviews, coreDevs) >= threshold {
		return nil
	}

	// 4. Any team-lead approval.
	if countApprovedBy(reviews, leads) >= 1 {
		return nil
	}

	// 5. Project-owner approval, or the requester is the owner.
	info, err := e.process.Load(ctx, owner, repo, pr.Head.SHA)
	if err != nil {
		return boterror.ProcessFile(issue, err)
	}
	if latestReviewIsApprovedFromOwner(reviews, info) || info.IsOwner(requester) {
		return nil
	}

	// 6. Refuse, distinguishing "no process info at all" from "has an
	// owner but they haven't approved."
	if info.IsEmpty() {
		return boterror.ProcessInfoMissing(issue)
	}
	return boterror.Approval(issue)
}

func (e *Engine) teamMembersOrEmpty(ctx context.Context, org, slug string) []ghclient.TeamMember {
	members, err := e.gh.TeamMembers(ctx, org, slug)
	if err != nil {
		e.log.WithError(err).WithField("team", slug).Warn("team lookup failed; treating as empty")
		return nil
	}
	return members
}

func containsLogin(members []ghclient.TeamMember, login string) bool {
	for _, m := range members {
		if m.Login == login {
			return true
		}
	}
	return false
}

func countApprovedBy(reviews []ghclient.Review, members []ghclient.TeamMember) int {
	count := 0
	for _, r := range reviews {
		if r.State != ghclient.ReviewApproved {
			continue
		}
		if containsLogin(members, r.Login) {
			count++
		}
	}
	return count
}

// latestReviewIsApprovedFromOwner finds the most recent review (by
// SubmittedAt, descending) authored by anyone the process info considers
// an owner, and reports whether that review is an approval.
func latestReviewIsApprovedFromOwner(reviews []ghclient.Review, info processinfo.Info) bool {
	sorted := make([]ghclient.Review, len(reviews))
	copy(sorted, reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.After(sorted[j].SubmittedAt)
	})
	for _, r := range sorted {
		if info.IsOwner(r.Login) {
			return r.State == ghclient.ReviewApproved
		}
	}
	return false
}
