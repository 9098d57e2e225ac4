// Package authz verifies that a pull-request commenter is authorized to
// issue merge/burnin commands, grounded on
// original_source/src/auth.rs's GithubUserAuthenticator and
// github/client.go's IsMember.
package authz

import (
	"context"
	"fmt"

	"github.com/polka-labs/marge/boterror"
)

type githubClient interface {
	IsOrgMember(ctx context.Context, org, login string) (bool, error)
}

// Service authorizes commenters against a single organization.
type Service struct {
	gh  githubClient
	org string
}

func NewService(gh githubClient, org string) *Service {
	return &Service{gh: gh, org: org}
}

// CheckOrgMembership returns nil if login is a member of the configured
// organization, or a boterror.KindOrgMembership error otherwise. Whether
// the cause is "not a member" or a transport failure, both propagate as
// the same error kind, since either way the command must not proceed.
func (s *Service) CheckOrgMembership(ctx context.Context, login string, issue boterror.Issue) error {
	ok, err := s.gh.IsOrgMember(ctx, s.org, login)
	if err != nil {
		return boterror.OrgMembership(issue, err)
	}
	if !ok {
		return boterror.OrgMembership(issue, fmt.Errorf("%s is not a member of %s", login, s.org))
	}
	return nil
}
