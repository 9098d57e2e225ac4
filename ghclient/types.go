// Package ghclient wraps google/go-github into the narrow shape the bot's
// core components need, mirroring github/client.go's method-per-endpoint
// style (github.com/clarketm/prow) but delegating the HTTP/JSON work to
// google/go-github/v57 instead of a hand-rolled net/http client.
package ghclient

import "time"

// PullRequest is the subset of a GitHub pull request the core consults.
type PullRequest struct {
	Number    int
	HTMLURL   string
	URL       string
	Body      string
	Mergeable *bool
	Labels    []string
	Head      Ref
	Base      Ref
}

// Ref identifies one side of a pull request.
type Ref struct {
	Ref       string
	SHA       string
	RepoName  string
	RepoOwner string
}

// StatusState mirrors GitHub's combined-status state.
type StatusState string

const (
	StatusSuccess StatusState = "success"
	StatusPending StatusState = "pending"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// CombinedStatus is the combined commit status for a ref.
type CombinedStatus struct {
	State StatusState
}

// CheckRun is a single GitHub Checks API run.
type CheckRun struct {
	Status     string // queued, in_progress, completed
	Conclusion string // success, failure, ... (empty if not completed)
}

// ReviewState mirrors GitHub's pull-request review state.
type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewCommented        ReviewState = "COMMENTED"
	ReviewDismissed        ReviewState = "DISMISSED"
)

// Review is a single pull-request review.
type Review struct {
	Login       string
	State       ReviewState
	SubmittedAt time.Time
}

// TeamMember identifies a member of a GitHub team.
type TeamMember struct {
	Login string
}

// Release is a GitHub release.
type Release struct {
	TagName string
}

// Tag is a GitHub annotated tag object.
type Tag struct {
	ObjectSHA string
}

// TreeEntry is one file in a git tree to be created via the git-data API.
type TreeEntry struct {
	Path    string
	Content string
	Mode    string // octal permission mode, e.g. "100644"
}
