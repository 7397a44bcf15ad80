package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

// requiredAlarmPatterns are substrings expected in at least one alarm name.
var requiredAlarmPatterns = []string{"unauthorized", "root", "guardduty"}

type alarmsAPIClient interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

type logGroupsAPIClient interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

// MonitoringChecker looks for the recommended security alarms and for any
// log groups at all.
type MonitoringChecker struct {
	alarms func(cfg aws.Config) alarmsAPIClient
	logs   func(cfg aws.Config) logGroupsAPIClient
}

func NewMonitoringChecker() *MonitoringChecker {
	return &MonitoringChecker{
		alarms: func(cfg aws.Config) alarmsAPIClient { return cloudwatch.NewFromConfig(cfg) },
		logs:   func(cfg aws.Config) logGroupsAPIClient { return cloudwatchlogs.NewFromConfig(cfg) },
	}
}

func (c *MonitoringChecker) Name() string { return CheckMonitoring }

func (c *MonitoringChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "monitoring and alerting", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)
		alarms := c.alarms(cfg)

		names, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[string], error) {
			out, err := alarms.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
				AlarmTypes: []cwtypes.AlarmType{cwtypes.AlarmTypeMetricAlarm, cwtypes.AlarmTypeCompositeAlarm},
				NextToken:  token,
			})
			if err != nil {
				return pagination.Page[string]{}, err
			}
			page := pagination.Page[string]{Next: out.NextToken}
			for _, a := range out.MetricAlarms {
				page.Items = append(page.Items, strings.ToLower(aws.ToString(a.AlarmName)))
			}
			for _, a := range out.CompositeAlarms {
				page.Items = append(page.Items, strings.ToLower(aws.ToString(a.AlarmName)))
			}
			return page, nil
		})
		if err != nil {
			return err
		}
		for _, pattern := range requiredAlarmPatterns {
			if !anyContains(names, pattern) {
				f.Warn(fmt.Sprintf("Missing recommended alarm pattern: %s", pattern))
			}
		}

		logs := c.logs(cfg)
		groups := pagination.All(ctx, func(ctx context.Context, token *string) (pagination.Page[cwltypes.LogGroup], error) {
			out, err := logs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{NextToken: token})
			if err != nil {
				return pagination.Page[cwltypes.LogGroup]{}, err
			}
			return pagination.Page[cwltypes.LogGroup]{Items: out.LogGroups, Next: out.NextToken}, nil
		})
		found := false
		for _, err := range groups {
			if err != nil {
				return err
			}
			// One log group is enough.
			found = true
			break
		}
		if !found {
			f.Warn("No CloudWatch LogGroups found")
		}
		return nil
	})
}

func anyContains(values []string, sub string) bool {
	for _, v := range values {
		if strings.Contains(v, sub) {
			return true
		}
	}
	return false
}
