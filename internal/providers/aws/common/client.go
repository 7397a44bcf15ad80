package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// Session is the operator's resolved base credential together with its SDK
// configuration and initialised service clients. It is the unit passed
// between provider functions and into the engine.
//
// A Session never holds per-account credentials; those are produced on demand
// by AssumeAuditRole and handed straight to the checkers.
type Session struct {
	// ProfileName is the shared-config profile in use, "static" for explicit
	// access keys, or "default".
	ProfileName string

	// Region is the home region of the base configuration.
	Region string

	// Config is the fully loaded AWS SDK v2 configuration.
	Config aws.Config

	// Clients holds the management-plane clients (STS, Organizations) built
	// from Config.
	Clients *ClientSet
}

// Identity is the caller identity reported by STS for the base credential.
type Identity struct {
	AccountID string `json:"account_id"`
	ARN       string `json:"arn"`
	UserID    string `json:"user_id"`
}

// AWSClientProvider loads the base AWS session.
// It is the sole entry point for credential management across the
// provider layer.
//
// Implementations must use the AWS SDK v2 only. Never call the aws CLI.
type AWSClientProvider interface {
	// LoadSession resolves base credentials into a Session. Static keys win
	// over Profile; with neither the SDK default chain is used.
	LoadSession(ctx context.Context, base models.BaseCredentials) (*Session, error)
}
