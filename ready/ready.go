// Package ready implements the CI-readiness evaluator, grounded on
// original_source/src/webhook.rs's ready_to_merge and
// tide/tide.go's isPassingTests/unsuccessfulContexts fold-to-tri-state
// pattern.
package ready

import (
	"context"
	"time"

	"github.com/polka-labs/marge/ghclient"
)

// State is the three-valued judgment over (combined-status, check-runs).
type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

type githubClient interface {
	CombinedStatus(ctx context.Context, owner, repo, ref string) (ghclient.CombinedStatus, error)
	CheckRuns(ctx context.Context, owner, repo, ref string) ([]ghclient.CheckRun, error)
}

// Evaluator combines a commit's combined-status and check-runs into a
// State.
type Evaluator struct {
	gh githubClient
	// WebhookSettleDelay is slept by EvaluateFromWebhook before the first
	// API read on the webhook resume path, mitigating read-your-writes
	// lag on the upstream status aggregator.
	WebhookSettleDelay time.Duration
}

func NewEvaluator(gh githubClient) *Evaluator {
	return &Evaluator{gh: gh, WebhookSettleDelay: time.Second}
}

// Evaluate is used on the command path: it does not apply the settle
// delay, since there is no webhook-arrival race to mitigate when a human
// just issued "bot merge".
func (e *Evaluator) Evaluate(ctx context.Context, owner, repo, commit string) (State, error) {
	return e.evaluate(ctx, owner, repo, commit)
}

// EvaluateFromWebhook is used on the resume path: it sleeps
// WebhookSettleDelay before reading.
func (e *Evaluator) EvaluateFromWebhook(ctx context.Context, owner, repo, commit string) (State, error) {
	select {
	case <-time.After(e.WebhookSettleDelay):
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
	return e.evaluate(ctx, owner, repo, commit)
}

func (e *Evaluator) evaluate(ctx context.Context, owner, repo, commit string) (State, error) {
	status, err := e.gh.CombinedStatus(ctx, owner, repo, commit)
	if err != nil {
		return Pending, err
	}

	switch status.State {
	case ghclient.StatusFailure, ghclient.StatusError:
		return Failed, nil
	case ghclient.StatusSuccess:
		checks, err := e.gh.CheckRuns(ctx, owner, repo, commit)
		if err != nil {
			return Pending, err
		}
		if allSucceeded(checks) {
			return Ready, nil
		}
		if allCompleted(checks) {
			return Failed, nil
		}
		return Pending, nil
	default: // pending
		return Pending, nil
	}
}

func allSucceeded(checks []ghclient.CheckRun) bool {
	for _, c := range checks {
		if c.Conclusion != "success" {
			return false
		}
	}
	return true
}

func allCompleted(checks []ghclient.CheckRun) bool {
	for _, c := range checks {
		if c.Status != "completed" {
			return false
		}
	}
	return true
}
