package checks

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2svc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

const accessLogsAttribute = "access_logs.s3.enabled"

// networkEC2Client embeds the SDK paginator interfaces so the SDK
// paginators can drive it directly.
type networkEC2Client interface {
	ec2.DescribeVpcsAPIClient
	ec2.DescribeFlowLogsAPIClient
	ec2.DescribeVpcEndpointsAPIClient
}

type networkELBClient interface {
	elbv2svc.DescribeLoadBalancersAPIClient
	DescribeLoadBalancerAttributes(ctx context.Context, params *elbv2svc.DescribeLoadBalancerAttributesInput, optFns ...func(*elbv2svc.Options)) (*elbv2svc.DescribeLoadBalancerAttributesOutput, error)
}

type networkEKSClient interface {
	eks.ListClustersAPIClient
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// NetworkBaselineChecker reviews VPC hygiene, public load balancer logging
// and public EKS endpoints.
type NetworkBaselineChecker struct {
	ec2 func(cfg aws.Config) networkEC2Client
	elb func(cfg aws.Config) networkELBClient
	eks func(cfg aws.Config) networkEKSClient
}

func NewNetworkBaselineChecker() *NetworkBaselineChecker {
	return &NetworkBaselineChecker{
		ec2: func(cfg aws.Config) networkEC2Client { return ec2.NewFromConfig(cfg) },
		elb: func(cfg aws.Config) networkELBClient { return elbv2svc.NewFromConfig(cfg) },
		eks: func(cfg aws.Config) networkEKSClient { return eks.NewFromConfig(cfg) },
	}
}

func (c *NetworkBaselineChecker) Name() string { return CheckNetworkBaseline }

func (c *NetworkBaselineChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "network baseline", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)
		if err := checkVPCs(ctx, c.ec2(cfg), f); err != nil {
			return err
		}
		if err := checkLoadBalancerLogs(ctx, c.elb(cfg), f); err != nil {
			f.Warn(fmt.Sprintf("Load balancer check failed: %s", errMessage(err)))
		}
		if err := checkEKSEndpoints(ctx, c.eks(cfg), f); err != nil {
			f.Warn(fmt.Sprintf("EKS endpoint check failed: %s", errMessage(err)))
		}
		return nil
	})
}

func checkVPCs(ctx context.Context, client networkEC2Client, f *models.Finding) error {
	var vpcIDs []string
	vpcs := ec2.NewDescribeVpcsPaginator(client, &ec2.DescribeVpcsInput{})
	for vpcs.HasMorePages() {
		page, err := vpcs.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, v := range page.Vpcs {
			if aws.ToBool(v.IsDefault) {
				f.Warn("Default VPC exists in account")
			}
			vpcIDs = append(vpcIDs, aws.ToString(v.VpcId))
		}
	}

	covered := map[string]bool{}
	flowLogs := ec2.NewDescribeFlowLogsPaginator(client, &ec2.DescribeFlowLogsInput{})
	for flowLogs.HasMorePages() {
		page, err := flowLogs.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, fl := range page.FlowLogs {
			covered[aws.ToString(fl.ResourceId)] = true
		}
	}
	if len(covered) == 0 {
		f.Warn("VPC Flow Logs not enabled")
	} else {
		for _, id := range vpcIDs {
			if !covered[id] {
				f.Warn(fmt.Sprintf("VPC '%s' has no flow logs", id))
			}
		}
	}

	var services []string
	endpoints := ec2.NewDescribeVpcEndpointsPaginator(client, &ec2.DescribeVpcEndpointsInput{})
	for endpoints.HasMorePages() {
		page, err := endpoints.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range page.VpcEndpoints {
			services = append(services, aws.ToString(e.ServiceName))
		}
	}
	for _, want := range []struct{ fragment, label string }{{"s3", "S3"}, {"ssm", "SSM"}} {
		if !slices.ContainsFunc(services, func(s string) bool { return strings.Contains(s, want.fragment) }) {
			f.Warn(fmt.Sprintf("Recommended VPC endpoint for %s missing", want.label))
		}
	}
	return nil
}

// checkLoadBalancerLogs warns for internet-facing application and network
// load balancers without access logging. Gateway load balancers have no
// access logs.
func checkLoadBalancerLogs(ctx context.Context, client networkELBClient, f *models.Finding) error {
	paginator := elbv2svc.NewDescribeLoadBalancersPaginator(client, &elbv2svc.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, lb := range page.LoadBalancers {
			if lb.Scheme != elbv2types.LoadBalancerSchemeEnumInternetFacing || lb.Type == elbv2types.LoadBalancerTypeEnumGateway {
				continue
			}
			attrs, err := client.DescribeLoadBalancerAttributes(ctx, &elbv2svc.DescribeLoadBalancerAttributesInput{
				LoadBalancerArn: lb.LoadBalancerArn,
			})
			if err != nil {
				return err
			}
			enabled := false
			for _, a := range attrs.Attributes {
				if aws.ToString(a.Key) == accessLogsAttribute && aws.ToString(a.Value) == "true" {
					enabled = true
				}
			}
			if !enabled {
				f.Warn(fmt.Sprintf("Internet-facing load balancer '%s' has access logging disabled", aws.ToString(lb.LoadBalancerName)))
			}
		}
	}
	return nil
}

func checkEKSEndpoints(ctx context.Context, client networkEKSClient, f *models.Finding) error {
	paginator := eks.NewListClustersPaginator(client, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, name := range page.Clusters {
			out, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return err
			}
			if out.Cluster == nil || out.Cluster.ResourcesVpcConfig == nil {
				continue
			}
			vpc := out.Cluster.ResourcesVpcConfig
			if vpc.EndpointPublicAccess && slices.Contains(vpc.PublicAccessCidrs, "0.0.0.0/0") {
				f.Warn(fmt.Sprintf("EKS cluster '%s' API endpoint is publicly accessible", name))
			}
		}
	}
	return nil
}
