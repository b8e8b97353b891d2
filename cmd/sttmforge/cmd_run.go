package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sttmforge/internal/config"
	"sttmforge/internal/governor"
	"sttmforge/internal/policy"
)

type taskFlags struct {
	policy          string
	maxAttempts     int
	lenientCoverage bool
	judgeFailOpen   bool
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.policy, "policy", "p", policy.NameMapping, "Policy: structured-mapping, sql-silver, sql-gold")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "Override the policy attempt bound")
	cmd.Flags().BoolVar(&f.lenientCoverage, "lenient-coverage", false, "Report missing target columns as non-strict")
	cmd.Flags().BoolVar(&f.judgeFailOpen, "judge-fail-open", false, "Treat an unusable judge reply as a non-strict note")
}

func (f *taskFlags) apply(cfg *config.Config) {
	if f.lenientCoverage {
		cfg.Policies.Mapping.StrictCoverage = false
	}
	if f.judgeFailOpen {
		cfg.Policies.Mapping.JudgeFailOpen = true
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var flags taskFlags
	var input, out string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one generation task",
		Long: `Runs one task through the governor and renders the outcome.

A structured-mapping input is a CSV export of the STTM sheet. A sql-silver or
sql-gold input is a JSON object: {"sttm": {...}, "instructions": "...",
"domain": "...", "product": "...", "multisilver": false, ...}.

Example:
  sttmforge run --policy structured-mapping --input customer.csv
  sttmforge run --policy sql-gold --input gold_task.json --out gold.py`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			a, err := opts.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := readTask(a.gov, flags.policy, input, flags.maxAttempts)
			if err != nil {
				return err
			}

			outcome, runErr := a.gov.Run(ctx, task)
			renderOutcome(cmd.OutOrStdout(), task, outcome, runErr)

			if runErr == nil && out != "" {
				if err := os.WriteFile(out, []byte(outcome.ArtifactText()), 0644); err != nil {
					return fmt.Errorf("failed to write artifact: %w", err)
				}
			}
			return runErr
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&input, "input", "i", "", "Task input file (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the validated artifact to this file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var flags taskFlags
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Run one task per input file concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			if concurrency > 0 {
				cfg.Batch.Concurrency = concurrency
			}

			a, err := opts.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks := make([]governor.Task, 0, len(args))
			for _, path := range args {
				task, err := readTask(a.gov, flags.policy, path, flags.maxAttempts)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				tasks = append(tasks, task)
			}

			results := governor.RunBatch(ctx, a.gov, tasks, cfg.Batch.Concurrency)
			failed := 0
			for i, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(args[i]))
				renderOutcome(cmd.OutOrStdout(), r.Task, r.Outcome, r.Err)
				if r.Err != nil {
					failed++
				}
			}
			renderStats(cmd.OutOrStdout(), a.stats.Snapshot())
			if failed > 0 {
				return fmt.Errorf("%d of %d tasks failed", failed, len(results))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum tasks in flight (default from config)")
	return cmd
}

// readTask builds a task for policyName from the file at path.
func readTask(gov *governor.Governor, policyName, path string, maxAttempts int) (governor.Task, error) {
	p, err := gov.Registry().Lookup(policyName)
	if err != nil {
		return governor.Task{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return governor.Task{}, fmt.Errorf("failed to read input: %w", err)
	}
	payload, err := decodeInput(p, data)
	if err != nil {
		return governor.Task{}, err
	}
	return governor.NewTask(p.Name, payload, maxAttempts), nil
}

// decodeInput reads CSV for the mapping policy and JSON otherwise.
func decodeInput(p *policy.Policy, data []byte) (any, error) {
	if p.Name == policy.NameMapping && !json.Valid(data) {
		return policy.NewMappingPayload(string(data))
	}
	return p.DecodePayload(data)
}
