package checks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

type configAPIClient interface {
	DescribeConfigurationRecorders(ctx context.Context, params *configservice.DescribeConfigurationRecordersInput, optFns ...func(*configservice.Options)) (*configservice.DescribeConfigurationRecordersOutput, error)
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configservice.DescribeConfigurationRecorderStatusInput, optFns ...func(*configservice.Options)) (*configservice.DescribeConfigurationRecorderStatusOutput, error)
	DescribeConfigurationAggregators(ctx context.Context, params *configservice.DescribeConfigurationAggregatorsInput, optFns ...func(*configservice.Options)) (*configservice.DescribeConfigurationAggregatorsOutput, error)
}

// AWSConfigChecker verifies that a configuration recorder is running and
// that findings are aggregated.
type AWSConfigChecker struct {
	clients func(cfg aws.Config) configAPIClient
}

func NewAWSConfigChecker() *AWSConfigChecker {
	return &AWSConfigChecker{
		clients: func(cfg aws.Config) configAPIClient { return configservice.NewFromConfig(cfg) },
	}
}

func (c *AWSConfigChecker) Name() string { return CheckAWSConfig }

func (c *AWSConfigChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "AWS Config", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		recorders, err := client.DescribeConfigurationRecorders(ctx, &configservice.DescribeConfigurationRecordersInput{})
		if err != nil {
			return err
		}
		if len(recorders.ConfigurationRecorders) == 0 {
			f.Fail("AWS Config recorder disabled")
		} else {
			status, err := client.DescribeConfigurationRecorderStatus(ctx, &configservice.DescribeConfigurationRecorderStatusInput{})
			if err != nil {
				return err
			}
			recording := false
			for _, s := range status.ConfigurationRecordersStatus {
				if s.Recording {
					recording = true
				}
			}
			if recording {
				f.Pass()
			} else {
				f.Fail("AWS Config recorder is not recording")
			}
		}

		aggregators, err := client.DescribeConfigurationAggregators(ctx, &configservice.DescribeConfigurationAggregatorsInput{})
		if err != nil {
			return err
		}
		if len(aggregators.ConfigurationAggregators) == 0 {
			f.Warn("No Config aggregator set up")
		}
		return nil
	})
}
