package ready

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polka-labs/marge/ghclient"
)

type fakeGithub struct {
	status ghclient.CombinedStatus
	checks []ghclient.CheckRun
}

func (f *fakeGithub) CombinedStatus(ctx context.Context, owner, repo, ref string) (ghclient.CombinedStatus, error) {
	return f.status, nil
}

func (f *fakeGithub) CheckRuns(ctx context.Context, owner, repo, ref string) ([]ghclient.CheckRun, error) {
	return f.checks, nil
}

func TestReadyWhenSuccessAndAllChecksSucceed(t *testing.T) {
	gh := &fakeGithub{
		status: ghclient.CombinedStatus{State: ghclient.StatusSuccess},
		checks: []ghclient.CheckRun{{Status: "completed", Conclusion: "success"}},
	}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Ready, state)
}

func TestFailedWhenCombinedStatusFailure(t *testing.T) {
	gh := &fakeGithub{status: ghclient.CombinedStatus{State: ghclient.StatusFailure}}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Failed, state)
}

func TestFailedWhenCombinedStatusError(t *testing.T) {
	gh := &fakeGithub{status: ghclient.CombinedStatus{State: ghclient.StatusError}}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Failed, state)
}

func TestFailedWhenStatusSuccessButChecksAllCompletedNonSuccess(t *testing.T) {
	gh := &fakeGithub{
		status: ghclient.CombinedStatus{State: ghclient.StatusSuccess},
		checks: []ghclient.CheckRun{{Status: "completed", Conclusion: "failure"}},
	}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Failed, state)
}

func TestPendingWhenStatusSuccessButChecksStillRunning(t *testing.T) {
	gh := &fakeGithub{
		status: ghclient.CombinedStatus{State: ghclient.StatusSuccess},
		checks: []ghclient.CheckRun{{Status: "in_progress"}},
	}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Pending, state)
}

func TestPendingWhenCombinedStatusPending(t *testing.T) {
	gh := &fakeGithub{status: ghclient.CombinedStatus{State: ghclient.StatusPending}}
	e := NewEvaluator(gh)
	state, err := e.Evaluate(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.Equal(t, Pending, state)
}

func TestEvaluateFromWebhookSleepsSettleDelay(t *testing.T) {
	gh := &fakeGithub{status: ghclient.CombinedStatus{State: ghclient.StatusSuccess}}
	e := NewEvaluator(gh)
	e.WebhookSettleDelay = 10 * time.Millisecond
	start := time.Now()
	_, err := e.EvaluateFromWebhook(context.Background(), "o", "r", "sha")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
