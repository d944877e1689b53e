// Package policy holds the immutable compile policy records. Policies are
// data, not code paths: the pipeline reads fields off the record instead
// of branching on mode.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/DanielWarg/fortknox/core/jcs"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Registry resolves policy ids to immutable policy records.
type Registry struct {
	policies map[string]knox.Policy
}

// Builtin returns a registry with the two stock policies.
func Builtin() (*Registry, error) {
	registry := &Registry{policies: map[string]knox.Policy{}}

	builtins := []knox.Policy{
		{
			PolicyID:         "internal",
			PolicyVersion:    "1.0",
			Mode:             knox.ModeInternal,
			SanitizeMinLevel: knox.LevelNormal,
			QuoteLimitWords:  8,
			DateStrictness:   "relaxed",
			MaxBytes:         800_000,
		},
		{
			PolicyID:         "external",
			PolicyVersion:    "1.0",
			Mode:             knox.ModeExternal,
			SanitizeMinLevel: knox.LevelStrict,
			QuoteLimitWords:  8,
			DateStrictness:   "strict",
			MaxBytes:         300_000,
		},
	}
	for _, p := range builtins {
		if err := registry.add(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type policyFile struct {
	Policies []knox.Policy `yaml:"policies"`
}

// LoadFile merges policies from a YAML file into the registry. File
// entries may add new policies or override builtins wholesale; partial
// overrides are not a thing, records stay immutable.
func (r *Registry) LoadFile(path string) error {
	// #nosec G304 -- policy path is explicit local configuration.
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var parsed policyFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return fmt.Errorf("parse policy yaml: %w", err)
	}
	for _, p := range parsed.Policies {
		if err := r.add(p); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the policy for an id.
func (r *Registry) Get(policyID string) (knox.Policy, error) {
	p, ok := r.policies[strings.TrimSpace(policyID)]
	if !ok {
		return knox.Policy{}, fmt.Errorf("unknown policy: %s", policyID)
	}
	return p, nil
}

// IDs returns the known policy ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) add(p knox.Policy) error {
	normalized, err := normalize(p)
	if err != nil {
		return err
	}
	r.policies[normalized.PolicyID] = normalized
	return nil
}

func normalize(p knox.Policy) (knox.Policy, error) {
	p.PolicyID = strings.TrimSpace(p.PolicyID)
	if p.PolicyID == "" {
		return knox.Policy{}, fmt.Errorf("policy_id is required")
	}
	if p.Mode != knox.ModeInternal && p.Mode != knox.ModeExternal {
		return knox.Policy{}, fmt.Errorf("policy %s: unsupported mode %q", p.PolicyID, p.Mode)
	}
	if p.SanitizeMinLevel.Rank() == 0 {
		return knox.Policy{}, fmt.Errorf("policy %s: unsupported sanitize_min_level %q", p.PolicyID, p.SanitizeMinLevel)
	}
	if p.QuoteLimitWords <= 0 {
		return knox.Policy{}, fmt.Errorf("policy %s: quote_limit_words must be positive", p.PolicyID)
	}
	if p.MaxBytes <= 0 {
		return knox.Policy{}, fmt.Errorf("policy %s: max_bytes must be positive", p.PolicyID)
	}
	if p.PolicyVersion == "" {
		p.PolicyVersion = "1.0"
	}

	hash, err := rulesetHash(p)
	if err != nil {
		return knox.Policy{}, err
	}
	p.RulesetHash = hash
	return p, nil
}

// rulesetHash digests the rule-bearing fields so two policies with the
// same rules share a hash independent of id, version or byte budget.
func rulesetHash(p knox.Policy) (string, error) {
	digest, err := jcs.Fingerprint(map[string]any{
		"mode":               string(p.Mode),
		"sanitize_min_level": string(p.SanitizeMinLevel),
		"quote_limit_words":  p.QuoteLimitWords,
		"date_strictness":    p.DateStrictness,
	})
	if err != nil {
		return "", fmt.Errorf("digest ruleset: %w", err)
	}
	return digest[:16], nil
}
