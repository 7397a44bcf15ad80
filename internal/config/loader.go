package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// EnvPrefix is prepended to every environment override, e.g.
// POSTURE_AWS_AUDIT_ROLE_ARN for aws.audit_role_arn.
const EnvPrefix = "POSTURE"

// DefaultConfigName is searched for in the working directory when no
// explicit file is given.
const DefaultConfigName = "posture"

// defaults lists every known key. Keys must be registered here for
// environment overrides to reach Unmarshal.
var defaults = map[string]any{
	"aws.region":                         models.DefaultRegion,
	"aws.access_key_id":                  "",
	"aws.secret_access_key":              "",
	"aws.profile":                        "",
	"aws.audit_role_arn":                 "",
	"aws.session_duration":               models.DefaultSessionDuration,
	"aws.max_attempts":                   3,
	"assessment.max_concurrency":         0,
	"assessment.max_access_key_age_days": 90,
	"assessment.required_tags":           []string{"Environment", "Owner", "Project"},
	"log.level":                          "info",
	"log.format":                         "console",
	"output.format":                      "table",
	"output.path":                        "",
	"output.fail_on":                     "",
	"upload.bucket":                      "",
	"upload.prefix":                      "",
	"upload.region":                      models.DefaultRegion,
	"server.addr":                        ":8080",
	"store.path":                         "",
	"policy.path":                        "",
}

// ViperLoader is the production Loader.
type ViperLoader struct {
	v    *viper.Viper
	path string
}

// NewLoader returns a loader reading path, or ./posture.yaml when path is
// empty and that file exists.
func NewLoader(path string) *ViperLoader {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return &ViperLoader{v: v, path: path}
}

// BindFlags binds command-line flags over config keys. bindings maps a config
// key (e.g. "aws.region") to a flag name in fs. Flags that are absent from fs
// are skipped. A flag only overrides the file when it was set explicitly.
func (l *ViperLoader) BindFlags(fs *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s to %s: %w", name, key, err)
		}
	}
	return nil
}

// Load reads the config file (optional when no explicit path was given),
// applies environment overrides and decodes the result.
func (l *ViperLoader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ConfigPath returns the file viper loaded, or "" when none.
func (l *ViperLoader) ConfigPath() string {
	return l.v.ConfigFileUsed()
}
