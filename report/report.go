// Package report implements the single funnel that turns a boterror.Error
// into a user-visible pull-request comment and, on the failure kinds that
// carry a commit id, deletes the corresponding queue entry.
package report

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/polka-labs/marge/boterror"
)

type githubClient interface {
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

type intentStore interface {
	Delete(commit string) error
}

// Reporter deletes the stored intent for every reported error that carries
// a commit id. queue.Controller's resume path also deletes the intent itself
// before returning HeadChanged or ChecksFailed.
type Reporter struct {
	gh    githubClient
	store intentStore
	log   *logrus.Entry
}

func NewReporter(gh githubClient, store intentStore, log *logrus.Entry) *Reporter {
	return &Reporter{gh: gh, store: store, log: log}
}

const troubleshootBlock = "\n\nIf you are not a project owner or core developer, ask one to review and approve this pull request."

// Report translates err into a comment on its tagged issue, if any, and
// deletes any intent keyed by its tagged commit. A nil err is a no-op. An
// err with no boterror.Error in its chain is logged but otherwise dropped,
// since there is nowhere to comment.
func (r *Reporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	be, ok := boterror.AsBotError(err)
	if !ok {
		r.log.WithError(err).Error("unclassified error reached the reporter")
		return
	}

	if be.Commit != "" {
		if derr := r.store.Delete(be.Commit); derr != nil {
			r.log.WithError(derr).WithField("commit", be.Commit).Warn("failed to delete intent on error path")
		}
	}

	if be.Issue == nil {
		r.log.WithError(be).Warn("error has no issue to comment on")
		return
	}

	body := message(be)
	if body == "" {
		return
	}
	if cerr := r.gh.CreateComment(ctx, be.Issue.Owner, be.Issue.Repo, be.Issue.Number, body); cerr != nil {
		r.log.WithError(cerr).Warn("failed to post error comment")
	}
}

// message renders a human-readable sentence for each error kind.
func message(be *boterror.Error) string {
	switch be.Kind {
	case boterror.KindUnmergeable:
		return "The PR is currently unmergeable."
	case boterror.KindProcessInfo:
		return "Missing process info; check that the PR belongs to a project column." + troubleshootBlock
	case boterror.KindApproval:
		return "Missing approval from the project owner or a minimum of core developers." + troubleshootBlock
	case boterror.KindHeadChanged:
		return "Head SHA changed; merge aborted."
	case boterror.KindChecksFailed:
		return "Checks failed; merge aborted."
	case boterror.KindMerge:
		return fmt.Sprintf("Merge failed: `%s`", causeMessage(be))
	case boterror.KindCompanion:
		return fmt.Sprintf("Error updating substrate: %s", causeMessage(be))
	case boterror.KindOrgMembership:
		return fmt.Sprintf("Error getting organization membership: %s", causeMessage(be))
	case boterror.KindProcessFile:
		return fmt.Sprintf("Error loading process info: %s", causeMessage(be))
	default:
		return be.Error()
	}
}

func causeMessage(be *boterror.Error) string {
	if be.Cause != nil {
		return be.Cause.Error()
	}
	return be.Error()
}
