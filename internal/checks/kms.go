package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

const defaultKeyPolicy = "default"

type kmsAPIClient interface {
	ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	GetKeyPolicy(ctx context.Context, params *kms.GetKeyPolicyInput, optFns ...func(*kms.Options)) (*kms.GetKeyPolicyOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error)
}

// KMSBaselineChecker reviews key policies and rotation of enabled
// customer-managed keys. AWS-managed keys are outside the account's control
// and are skipped.
type KMSBaselineChecker struct {
	clients func(cfg aws.Config) kmsAPIClient
}

func NewKMSBaselineChecker() *KMSBaselineChecker {
	return &KMSBaselineChecker{
		clients: func(cfg aws.Config) kmsAPIClient { return kms.NewFromConfig(cfg) },
	}
}

func (c *KMSBaselineChecker) Name() string { return CheckKMSBaseline }

func (c *KMSBaselineChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "KMS baseline", account, func(f *models.Finding) error {
		client := c.clients(sessionConfig(ctx, creds, region))

		keys, err := pagination.Collect(ctx, func(ctx context.Context, marker *string) (pagination.Page[kmstypes.KeyListEntry], error) {
			out, err := client.ListKeys(ctx, &kms.ListKeysInput{Marker: marker})
			if err != nil {
				return pagination.Page[kmstypes.KeyListEntry]{}, err
			}
			return pagination.Page[kmstypes.KeyListEntry]{
				Items:     out.Keys,
				Next:      out.NextMarker,
				Truncated: pagination.Truncated(out.Truncated),
			}, nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := checkKey(ctx, client, aws.ToString(k.KeyId), f); err != nil {
				return err
			}
		}
		return nil
	})
}

func checkKey(ctx context.Context, client kmsAPIClient, keyID string, f *models.Finding) error {
	desc, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		f.Warn(fmt.Sprintf("Could not describe KMS key %s: %s", keyID, errMessage(err)))
		return nil
	}
	meta := desc.KeyMetadata
	if meta == nil || meta.KeyManager != kmstypes.KeyManagerTypeCustomer || meta.KeyState != kmstypes.KeyStateEnabled {
		return nil
	}

	policy, err := client.GetKeyPolicy(ctx, &kms.GetKeyPolicyInput{
		KeyId:      aws.String(keyID),
		PolicyName: aws.String(defaultKeyPolicy),
	})
	if err != nil {
		return err
	}
	doc, err := parsePolicyDocument(aws.ToString(policy.Policy))
	if err != nil {
		f.Warn(fmt.Sprintf("Could not parse key policy for key %s: %v", keyID, err))
	} else if doc.grantsAllActions() || doc.openToAnyone() {
		f.Fail(fmt.Sprintf("KMS key has overly broad permissions: %s", keyID))
	}

	// Rotation applies to symmetric encryption keys only.
	if meta.KeySpec != kmstypes.KeySpecSymmetricDefault {
		return nil
	}
	rotation, err := client.GetKeyRotationStatus(ctx, &kms.GetKeyRotationStatusInput{KeyId: aws.String(keyID)})
	switch {
	case err != nil:
		f.Warn(fmt.Sprintf("Could not check rotation status for key %s: %s", keyID, errMessage(err)))
	case !rotation.KeyRotationEnabled:
		f.Warn(fmt.Sprintf("KMS key rotation disabled: %s", keyID))
	}
	return nil
}
