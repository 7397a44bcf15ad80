// Package config loads posture settings from an optional YAML file, POSTURE_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// Config is the top-level application configuration.
// It must never be committed with real secrets.
type Config struct {
	AWS        AWSConfig        `mapstructure:"aws" yaml:"aws" json:"aws"`
	Assessment AssessmentConfig `mapstructure:"assessment" yaml:"assessment" json:"assessment"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Upload     UploadConfig     `mapstructure:"upload" yaml:"upload" json:"upload"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store" json:"store"`
	Policy     PolicyConfig     `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// AWSConfig holds the base credential and role settings.
type AWSConfig struct {
	// Region is the home region and the region every checker runs against.
	Region string `mapstructure:"region" yaml:"region" json:"region"`

	// AccessKeyID and SecretAccessKey select static credentials. Leave both
	// empty to use Profile or the SDK default chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"-"`

	// Profile is a shared-config profile name.
	Profile string `mapstructure:"profile" yaml:"profile" json:"profile"`

	// AuditRoleARN is the role assumed in each member account. Its account-id
	// segment is replaced per account.
	AuditRoleARN string `mapstructure:"audit_role_arn" yaml:"audit_role_arn" json:"audit_role_arn"`

	// SessionDuration is the lifetime of each assumed-role session.
	SessionDuration time.Duration `mapstructure:"session_duration" yaml:"session_duration" json:"session_duration"`

	// MaxAttempts is the SDK retryer attempt count.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
}

// AssessmentConfig tunes the engine and parameterised checkers.
type AssessmentConfig struct {
	// MaxConcurrency caps concurrent checkers per account. Zero means no cap.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency"`

	MaxAccessKeyAgeDays int      `mapstructure:"max_access_key_age_days" yaml:"max_access_key_age_days" json:"max_access_key_age_days"`
	RequiredTags        []string `mapstructure:"required_tags" yaml:"required_tags" json:"required_tags"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// OutputConfig controls report rendering for the assess command.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`

	// Path writes the report to a file instead of stdout.
	Path string `mapstructure:"path" yaml:"path" json:"path"`

	// FailOn makes assess exit non-zero when a finding reaches this status.
	FailOn string `mapstructure:"fail_on" yaml:"fail_on" json:"fail_on"`
}

// UploadConfig enables the S3 copy of each JSON report.
type UploadConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region string `mapstructure:"region" yaml:"region" json:"region"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// StoreConfig enables run history. An empty Path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// PolicyConfig points at the optional policy file.
type PolicyConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// Loader is the interface for reading Config.
type Loader interface {
	// Load reads, parses and merges the configuration sources.
	Load() (*Config, error)

	// ConfigPath returns the configuration file in use, or "" when none was found.
	ConfigPath() string
}

var accessKeyPattern = regexp.MustCompile(`^AKIA[A-Z0-9]{16}$`)

// ErrAuditRoleRequired is returned by Validate when no audit role is configured.
var ErrAuditRoleRequired = errors.New("aws.audit_role_arn is required")

// ValidateCredentials checks the static key pair when one is given.
func (c *Config) ValidateCredentials() error {
	var errs []error
	id, secret := strings.TrimSpace(c.AWS.AccessKeyID), strings.TrimSpace(c.AWS.SecretAccessKey)
	if (id == "") != (secret == "") {
		errs = append(errs, errors.New("aws.access_key_id and aws.secret_access_key must be set together"))
	}
	if id != "" && !accessKeyPattern.MatchString(id) {
		errs = append(errs, fmt.Errorf("aws.access_key_id: invalid format (want 20 characters starting with AKIA)"))
	}
	if secret != "" && len(secret) != 40 {
		errs = append(errs, fmt.Errorf("aws.secret_access_key: must be 40 characters, got %d", len(secret)))
	}
	return errors.Join(errs...)
}

// Validate checks everything an assessment run needs.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AWS.AuditRoleARN) == "" {
		errs = append(errs, ErrAuditRoleRequired)
	}
	if err := c.ValidateCredentials(); err != nil {
		errs = append(errs, err)
	}
	if c.AWS.SessionDuration != 0 && (c.AWS.SessionDuration < 15*time.Minute || c.AWS.SessionDuration > 12*time.Hour) {
		errs = append(errs, fmt.Errorf("aws.session_duration: %s outside 15m..12h", c.AWS.SessionDuration))
	}
	if c.Assessment.MaxConcurrency < 0 {
		errs = append(errs, errors.New("assessment.max_concurrency must not be negative"))
	}
	if c.Assessment.MaxAccessKeyAgeDays <= 0 {
		errs = append(errs, errors.New("assessment.max_access_key_age_days must be positive"))
	}
	switch strings.ToUpper(c.Output.FailOn) {
	case "", "WARN", "FAIL":
	default:
		errs = append(errs, fmt.Errorf("output.fail_on: invalid value %q; valid values: WARN, FAIL", c.Output.FailOn))
	}
	return errors.Join(errs...)
}

// BaseCredentials returns the operator credential settings.
func (c *Config) BaseCredentials() models.BaseCredentials {
	return models.BaseCredentials{
		AccessKeyID:     strings.TrimSpace(c.AWS.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(c.AWS.SecretAccessKey),
		Region:          c.AWS.Region,
		Profile:         c.AWS.Profile,
	}
}

// AssessmentConfig returns the run parameters handed to the engine.
func (c *Config) AssessmentConfig() models.AssessmentConfig {
	return models.AssessmentConfig{
		AuditRoleARN:    strings.TrimSpace(c.AWS.AuditRoleARN),
		Region:          c.AWS.Region,
		SessionDuration: c.AWS.SessionDuration,
		MaxConcurrency:  c.Assessment.MaxConcurrency,
	}
}

// MaxAccessKeyAge returns the key age limit as a duration.
func (c *Config) MaxAccessKeyAge() time.Duration {
	return time.Duration(c.Assessment.MaxAccessKeyAgeDays) * 24 * time.Hour
}
