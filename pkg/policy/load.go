package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads, parses, and validates a single policy file. The returned
// policy has defaults applied (enabled defaults to true). Read and parse
// failures come back as *LoadError, semantic problems as *ValidationError.
func LoadFile(path string) (*GuardrailPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}

	p := GuardrailPolicy{Enabled: true}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateFile checks a single policy file without keeping the result.
// It backs the "validate" CLI command so policy changes can be gated in CI.
func ValidateFile(path string) error {
	_, err := LoadFile(path)
	return err
}

// LoadDir loads every enabled policy from the .yaml and .yml files directly
// under dir, one policy per file. Files are loaded in lexical filename
// order, which fixes the first-match evaluation order. A file that fails to
// load or validate is logged and skipped so one bad file cannot take the
// whole set down; disabled policies and duplicate policy IDs are skipped
// the same way.
func LoadDir(dir string) ([]*GuardrailPolicy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Cause: err}
	}

	log := slog.With("component", "policy-loader")

	var policies []*GuardrailPolicy
	seen := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !hasPolicyExt(name) {
			continue
		}
		path := filepath.Join(dir, name)

		p, err := LoadFile(path)
		if err != nil {
			log.Warn("skipping policy file", "path", path, "error", err)
			continue
		}
		if !p.Enabled {
			log.Info("skipping disabled policy", "policy_id", p.PolicyID, "path", path)
			continue
		}
		if prev, dup := seen[p.PolicyID]; dup {
			log.Warn("skipping duplicate policy id", "policy_id", p.PolicyID, "path", path, "first_seen", prev)
			continue
		}
		seen[p.PolicyID] = path
		policies = append(policies, p)
	}

	if len(policies) == 0 {
		log.Warn("no enabled policies loaded", "dir", dir)
	}
	return policies, nil
}

func hasPolicyExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
