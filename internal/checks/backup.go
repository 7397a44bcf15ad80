package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/backup"
	backuptypes "github.com/aws/aws-sdk-go-v2/service/backup/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/pagination"
)

type backupAPIClient interface {
	ListBackupPlans(ctx context.Context, params *backup.ListBackupPlansInput, optFns ...func(*backup.Options)) (*backup.ListBackupPlansOutput, error)
	ListBackupVaults(ctx context.Context, params *backup.ListBackupVaultsInput, optFns ...func(*backup.Options)) (*backup.ListBackupVaultsOutput, error)
	DescribeBackupVault(ctx context.Context, params *backup.DescribeBackupVaultInput, optFns ...func(*backup.Options)) (*backup.DescribeBackupVaultOutput, error)
}

// BackupChecker verifies backup plans, vault encryption and RDS automated
// backups.
type BackupChecker struct {
	backup func(cfg aws.Config) backupAPIClient
	rds    func(cfg aws.Config) rds.DescribeDBInstancesAPIClient
}

func NewBackupChecker() *BackupChecker {
	return &BackupChecker{
		backup: func(cfg aws.Config) backupAPIClient { return backup.NewFromConfig(cfg) },
		rds:    func(cfg aws.Config) rds.DescribeDBInstancesAPIClient { return rds.NewFromConfig(cfg) },
	}
}

func (c *BackupChecker) Name() string { return CheckBackup }

func (c *BackupChecker) Check(ctx context.Context, account models.Account, creds aws.CredentialsProvider, region string) *models.Finding {
	return run(c.Name(), "backup policies", account, func(f *models.Finding) error {
		cfg := sessionConfig(ctx, creds, region)
		client := c.backup(cfg)

		plans, err := client.ListBackupPlans(ctx, &backup.ListBackupPlansInput{MaxResults: aws.Int32(1)})
		if err != nil {
			return err
		}
		if len(plans.BackupPlansList) == 0 {
			f.Warn("No backup plans configured")
		}

		vaults, err := pagination.Collect(ctx, func(ctx context.Context, token *string) (pagination.Page[backuptypes.BackupVaultListMember], error) {
			out, err := client.ListBackupVaults(ctx, &backup.ListBackupVaultsInput{NextToken: token})
			if err != nil {
				return pagination.Page[backuptypes.BackupVaultListMember]{}, err
			}
			return pagination.Page[backuptypes.BackupVaultListMember]{Items: out.BackupVaultList, Next: out.NextToken}, nil
		})
		if err != nil {
			return err
		}
		for _, v := range vaults {
			name := aws.ToString(v.BackupVaultName)
			out, err := client.DescribeBackupVault(ctx, &backup.DescribeBackupVaultInput{BackupVaultName: v.BackupVaultName})
			switch {
			case err != nil:
				f.Warn(fmt.Sprintf("Could not verify encryption for backup vault '%s': %s", name, errMessage(err)))
			case aws.ToString(out.EncryptionKeyArn) == "":
				f.Warn(fmt.Sprintf("Backup vault '%s' has no encryption key", name))
			}
		}

		paginator := rds.NewDescribeDBInstancesPaginator(c.rds(cfg), &rds.DescribeDBInstancesInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				f.Warn(fmt.Sprintf("RDS backup check failed: %s", errMessage(err)))
				break
			}
			for _, db := range page.DBInstances {
				if aws.ToInt32(db.BackupRetentionPeriod) == 0 {
					f.Warn(fmt.Sprintf("RDS instance '%s' has automated backups disabled", aws.ToString(db.DBInstanceIdentifier)))
				}
			}
		}

		if f.IsPass() {
			f.Pass()
		}
		return nil
	})
}
