package policy

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polka-labs/marge/boterror"
	"github.com/polka-labs/marge/ghclient"
	"github.com/polka-labs/marge/processinfo"
)

type fakeGithub struct {
	teams   map[string][]ghclient.TeamMember
	reviews []ghclient.Review
}

func (f *fakeGithub) TeamMembers(ctx context.Context, org, slug string) ([]ghclient.TeamMember, error) {
	return f.teams[slug], nil
}

func (f *fakeGithub) Reviews(ctx context.Context, owner, repo string, number int) ([]ghclient.Review, error) {
	return f.reviews, nil
}

type fakeProcess struct {
	info processinfo.Info
	err  error
}

func (f *fakeProcess) Load(ctx context.Context, owner, repo, sha string) (processinfo.Info, error) {
	return f.info, f.err
}

func mergeablePR(labels ...string) *ghclient.PullRequest {
	t := true
	return &ghclient.PullRequest{Number: 42, Mergeable: &t, Labels: labels, Head: ghclient.Ref{SHA: "abc"}}
}

func boKind(t *testing.T, err error) boterror.Kind {
	t.Helper()
	be, ok := boterror.AsBotError(err)
	require.True(t, ok)
	return be.Kind
}

func TestUnmergeableRefused(t *testing.T) {
	pr := mergeablePR()
	pr.Mergeable = nil
	e := NewEngine(&fakeGithub{}, &fakeProcess{}, Config{}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", pr, "alice")
	require.Error(t, err)
	assert.Equal(t, boterror.KindUnmergeable, boKind(t, err))
}

func TestTeamLeadRequesterAlwaysAllowed(t *testing.T) {
	gh := &fakeGithub{teams: map[string][]ghclient.TeamMember{"substrateteamleads": {{Login: "alice"}}}}
	e := NewEngine(gh, &fakeProcess{}, Config{}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "alice")
	assert.NoError(t, err)
}

func TestCoreDevApprovalsMeetingThresholdAllowed(t *testing.T) {
	gh := &fakeGithub{
		teams: map[string][]ghclient.TeamMember{
			"core-devs": {{Login: "bob"}, {Login: "carol"}},
		},
		reviews: []ghclient.Review{
			{Login: "bob", State: ghclient.ReviewApproved},
			{Login: "carol", State: ghclient.ReviewApproved},
		},
	}
	e := NewEngine(gh, &fakeProcess{}, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	assert.NoError(t, err)
}

func TestInsufficientApprovalRefused(t *testing.T) {
	gh := &fakeGithub{
		teams: map[string][]ghclient.TeamMember{
			"core-devs": {{Login: "bob"}, {Login: "carol"}},
		},
		reviews: []ghclient.Review{
			{Login: "bob", State: ghclient.ReviewApproved},
		},
	}
	e := NewEngine(gh, &fakeProcess{info: processinfo.Info{}}, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	require.Error(t, err)
	assert.Equal(t, boterror.KindProcessInfo, boKind(t, err))
}

func TestInsubstantialLabelLowersThresholdButNeverBelowOne(t *testing.T) {
	gh := &fakeGithub{
		teams: map[string][]ghclient.TeamMember{
			"core-devs": {{Login: "bob"}},
		},
		reviews: []ghclient.Review{
			{Login: "bob", State: ghclient.ReviewApproved},
		},
	}
	e := NewEngine(gh, &fakeProcess{}, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR("B0-silent", "insubstantial"), "dave")
	assert.NoError(t, err)

	gh.reviews = nil
	err = e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR("B0-silent", "insubstantial"), "dave")
	assert.Error(t, err)
}

func TestTeamLeadApprovalAllowsWithoutCoreDevThreshold(t *testing.T) {
	gh := &fakeGithub{
		teams: map[string][]ghclient.TeamMember{
			"substrateteamleads": {{Login: "lead1"}},
		},
		reviews: []ghclient.Review{
			{Login: "lead1", State: ghclient.ReviewApproved},
		},
	}
	e := NewEngine(gh, &fakeProcess{}, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	assert.NoError(t, err)
}

func TestOwnerApprovalAllowed(t *testing.T) {
	gh := &fakeGithub{
		reviews: []ghclient.Review{
			{Login: "owner1", State: ghclient.ReviewApproved, SubmittedAt: time.Now()},
		},
	}
	process := &fakeProcess{info: processinfo.Info{Owner: "owner1"}}
	e := NewEngine(gh, process, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	assert.NoError(t, err)
}

func TestRequesterIsOwnerAllowedEvenWithoutApproval(t *testing.T) {
	process := &fakeProcess{info: processinfo.Info{Owner: "dave"}}
	e := NewEngine(&fakeGithub{}, process, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	assert.NoError(t, err)
}

func TestLatestOwnerReviewWinsOverEarlierApproval(t *testing.T) {
	now := time.Now()
	gh := &fakeGithub{
		reviews: []ghclient.Review{
			{Login: "owner1", State: ghclient.ReviewApproved, SubmittedAt: now.Add(-time.Hour)},
			{Login: "owner1", State: ghclient.ReviewChangesRequested, SubmittedAt: now},
		},
	}
	process := &fakeProcess{info: processinfo.Info{Owner: "owner1"}}
	e := NewEngine(gh, process, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	require.Error(t, err)
	assert.Equal(t, boterror.KindApproval, boKind(t, err))
}

func TestEmptyProcessInfoYieldsProcessInfoKind(t *testing.T) {
	e := NewEngine(&fakeGithub{}, &fakeProcess{info: processinfo.Info{}}, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	require.Error(t, err)
	assert.Equal(t, boterror.KindProcessInfo, boKind(t, err))
}

func TestNonEmptyProcessInfoYieldsApprovalKind(t *testing.T) {
	process := &fakeProcess{info: processinfo.Info{Owner: "someone-else"}}
	e := NewEngine(&fakeGithub{}, process, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	err := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	require.Error(t, err)
	assert.Equal(t, boterror.KindApproval, boKind(t, err))
}

func TestAddingTeamLeadApprovalNeverTurnsAllowedIntoRefusal(t *testing.T) {
	gh := &fakeGithub{
		teams: map[string][]ghclient.TeamMember{
			"core-devs":           {{Login: "bob"}, {Login: "carol"}},
			"substrateteamleads": {{Login: "lead1"}},
		},
		reviews: []ghclient.Review{
			{Login: "bob", State: ghclient.ReviewApproved},
			{Login: "carol", State: ghclient.ReviewApproved},
		},
	}
	process := &fakeProcess{}
	e := NewEngine(gh, process, Config{MinReviewers: 2}, logrus.NewEntry(logrus.New()))
	baseline := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	require.NoError(t, baseline)

	gh.reviews = append(gh.reviews, ghclient.Review{Login: "lead1", State: ghclient.ReviewApproved})
	withLead := e.MergeAllowed(context.Background(), "paritytech", "substrate", mergeablePR(), "dave")
	assert.NoError(t, withLead)
}
