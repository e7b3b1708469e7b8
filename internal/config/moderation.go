package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"campus-lostfound/internal/moderation"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadModerationTerms reads blocked terms and safe phrases from a YAML or
// TOML file. An empty path returns the built-in term sets.
func LoadModerationTerms(path string) (moderation.Config, error) {
	if path == "" {
		return moderation.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return moderation.Config{}, fmt.Errorf("reading moderation terms: %w", err)
	}

	var cfg moderation.Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return moderation.Config{}, fmt.Errorf("parsing moderation terms %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return moderation.Config{}, fmt.Errorf("parsing moderation terms %s: %w", path, err)
		}
	default:
		return moderation.Config{}, fmt.Errorf("unsupported moderation terms format %q", ext)
	}

	if len(cfg.BlockedTerms) == 0 {
		return moderation.Config{}, fmt.Errorf("moderation terms %s: blocked_terms is empty", path)
	}
	return cfg, nil
}
