package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ListProfiles returns the deduplicated profile names defined in
// ~/.aws/credentials and ~/.aws/config. Missing files are not an error.
func ListProfiles() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return listProfilesFrom(
		filepath.Join(home, ".aws", "credentials"),
		filepath.Join(home, ".aws", "config"),
	)
}

// listProfilesFrom merges profile names from the given credentials and config
// files, preserving first-seen order.
func listProfilesFrom(credentialsPath, configPath string) ([]string, error) {
	credProfiles, err := profilesFromFile(credentialsPath, false)
	if err != nil {
		return nil, err
	}
	// ~/.aws/config: non-default profiles are prefixed with "profile ".
	cfgProfiles, err := profilesFromFile(configPath, true)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var all []string
	for _, name := range append(credProfiles, cfgProfiles...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		all = append(all, name)
	}
	return all, nil
}

// profilesFromFile loads path as INI and returns one name per section.
// The implicit top-level section is skipped.
func profilesFromFile(path string, stripProfilePrefix bool) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var names []string
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		if stripProfilePrefix && name != "default" {
			// Only "[profile x]" sections are profiles; sso-session and
			// services sections are not.
			if !strings.HasPrefix(name, "profile ") {
				continue
			}
			name = strings.TrimPrefix(name, "profile ")
		}
		names = append(names, strings.TrimSpace(name))
	}
	return names, nil
}
