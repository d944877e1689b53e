package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DanielWarg/fortknox/core/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect compile policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadPolicies()
		if err != nil {
			return err
		}
		bold := color.New(color.Bold).SprintFunc()
		for _, id := range registry.IDs() {
			p, err := registry.Get(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  mode=%s  min_level=%s  ruleset=%s\n",
				bold(p.PolicyID), p.Mode, p.SanitizeMinLevel, p.RulesetHash)
		}
		return nil
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <policy-id>",
	Short: "Show one policy in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadPolicies()
		if err != nil {
			return err
		}
		p, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("policy_id:          %s\n", p.PolicyID)
		fmt.Printf("policy_version:     %s\n", p.PolicyVersion)
		fmt.Printf("mode:               %s\n", p.Mode)
		fmt.Printf("sanitize_min_level: %s\n", p.SanitizeMinLevel)
		fmt.Printf("quote_limit_words:  %d\n", p.QuoteLimitWords)
		fmt.Printf("date_strictness:    %s\n", p.DateStrictness)
		fmt.Printf("max_bytes:          %d\n", p.MaxBytes)
		fmt.Printf("ruleset_hash:       %s\n", p.RulesetHash)
		return nil
	},
}

func loadPolicies() (*policy.Registry, error) {
	registry, err := policy.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.PolicyPath != "" {
		if err := registry.LoadFile(cfg.PolicyPath); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyShowCmd)
	rootCmd.AddCommand(policyCmd)
}
