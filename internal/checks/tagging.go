package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	tagging "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

// DefaultRequiredTags are the tag keys every resource is expected to carry.
var DefaultRequiredTags = []string{"Environment", "Owner", "Project"}

const resourcesPerPage = 100

type taggingAPIClient interface {
	GetResources(ctx context.Context, params *tagging.GetResourcesInput, optFns ...func(*tagging.Options)) (*tagging.GetResourcesOutput, error)
}

// TaggingChecker counts resources missing any of the required tag keys.
type TaggingChecker struct {
	requiredTags []string
	clients      func(cfg aws.Config) taggingAPIClient
}

// NewTaggingChecker returns a checker for requiredTags, or
// DefaultRequiredTags when none are given.
func NewTaggingChecker(requiredTags ...string) *TaggingChecker {
	if len(requiredTags) == 0 {
		requiredTags = DefaultRequiredTags
	}
	return &TaggingChecker{
		requiredTags: requiredTags,
		clients:      func(cfg aws.Config) taggingAPIClient { return tagging.NewFromConfig(cfg) },
	}
}

func (c *TaggingChecker) Name() string { return CheckTagging }

func (c *TaggingChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "tagging baseline", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		resources := pagination.All(ctx, func(ctx context.Context, token *string) (pagination.Page[taggingtypes.ResourceTagMapping], error) {
			out, err := client.GetResources(ctx, &tagging.GetResourcesInput{
				ResourcesPerPage: aws.Int32(resourcesPerPage),
				PaginationToken:  token,
			})
			if err != nil {
				return pagination.Page[taggingtypes.ResourceTagMapping]{}, err
			}
			return pagination.Page[taggingtypes.ResourceTagMapping]{Items: out.ResourceTagMappingList, Next: out.PaginationToken}, nil
		})

		missing := 0
		for r, err := range resources {
			if err != nil {
				return err
			}
			if !c.hasRequiredTags(r.Tags) {
				missing++
			}
		}
		if missing > 0 {
			f.Warn(fmt.Sprintf("%d resources missing mandatory tags", missing))
		}
		return nil
	})
}

func (c *TaggingChecker) hasRequiredTags(tags []taggingtypes.Tag) bool {
	keys := make(map[string]bool, len(tags))
	for _, t := range tags {
		keys[aws.ToString(t.Key)] = true
	}
	for _, want := range c.requiredTags {
		if !keys[want] {
			return false
		}
	}
	return true
}
