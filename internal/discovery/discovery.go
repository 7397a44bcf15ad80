// Package discovery lists the member accounts of an AWS Organization.
package discovery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

// DiscoveryError reports that the account roster could not be built.
// It is fatal to the whole assessment run.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover organization accounts: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// AccountLister is the Organizations operation used for discovery.
type AccountLister interface {
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

// Discoverer builds the account roster.
type Discoverer interface {
	DiscoverAccounts(ctx context.Context) ([]models.Account, error)
}

// OrganizationDiscoverer lists accounts through the Organizations API using
// the base credential.
type OrganizationDiscoverer struct {
	client AccountLister
}

// NewOrganizationDiscoverer returns a Discoverer backed by client.
func NewOrganizationDiscoverer(client AccountLister) *OrganizationDiscoverer {
	return &OrganizationDiscoverer{client: client}
}

// DiscoverAccounts returns every ACTIVE account in the organization, in the
// order the API lists them. Suspended and closing accounts are dropped
// silently. Any error is returned as *DiscoveryError.
func (d *OrganizationDiscoverer) DiscoverAccounts(ctx context.Context) ([]models.Account, error) {
	all, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[orgtypes.Account], error) {
		out, err := d.client.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: token})
		if err != nil {
			return pagination.Page[orgtypes.Account]{}, err
		}
		return pagination.Page[orgtypes.Account]{Items: out.Accounts, Next: out.NextToken}, nil
	})
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	accounts := make([]models.Account, 0, len(all))
	for _, a := range all {
		acct := toAccount(a)
		if !acct.Active() {
			continue
		}
		accounts = append(accounts, acct)
	}

	zerolog.Ctx(ctx).Debug().
		Int("listed", len(all)).
		Int("active", len(accounts)).
		Msg("organization accounts discovered")

	return accounts, nil
}

func toAccount(a orgtypes.Account) models.Account {
	return models.Account{
		ID:     aws.ToString(a.Id),
		Name:   aws.ToString(a.Name),
		Email:  aws.ToString(a.Email),
		Status: models.AccountStatus(a.Status),
	}
}
