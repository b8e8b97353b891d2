package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sttmforge/internal/policy"
	"sttmforge/internal/prompts"
	"sttmforge/internal/sanitize"
	"sttmforge/internal/validate"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var flags taskFlags
	var artifact, input string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an artifact offline (syntax and deterministic rules, no oracle)",
		Long: `Sanitizes and validates an existing artifact against a policy's grammar
and deterministic rules. No oracle is contacted, so judge escalation is
skipped. With --input, the task input supplies the required items (e.g.
target columns for structured-mapping).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			registry := policy.FromConfig(cfg.Policies, prompts.NewLoader(cfg.Templates.Dir))
			p, err := registry.Lookup(flags.policy)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(artifact)
			if err != nil {
				return fmt.Errorf("failed to read artifact: %w", err)
			}

			var payload any
			if input != "" {
				data, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				if payload, err = decodeInput(p, data); err != nil {
					return err
				}
			}

			report, err := validateArtifact(cmd, p, string(raw), payload)
			if err != nil {
				return err
			}
			renderReport(cmd.OutOrStdout(), report)
			if !report.IsValid() {
				return errors.New("artifact is not valid")
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "Artifact file to validate (required)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Task input supplying required items")
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func validateArtifact(cmd *cobra.Command, p *policy.Policy, raw string, payload any) (validate.Report, error) {
	ctx := cmd.Context()
	art, err := p.Syntax(ctx, sanitize.Sanitize(raw))
	if err != nil {
		var syn *validate.SyntaxError
		if errors.As(err, &syn) {
			return validate.NewReport(syn.Issue()), nil
		}
		return validate.Report{}, err
	}
	return p.Evaluate(ctx, art, payload), nil
}
