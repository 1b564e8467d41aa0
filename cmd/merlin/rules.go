package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/rules"
)

func newRulesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect screening rules",
	}

	var costLimit uint64
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Compile a rule document and report rules that never match",
		Long: "Compile every condition in the rule document. Conditions that fail to compile are\n" +
			"listed and the command exits non-zero. Without a path the configured rules_path is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				path = cfg.Screening.RulesPath
				if !cmd.Flags().Changed("cost-limit") {
					costLimit = cfg.Screening.CostLimit
				}
			}
			return checkRules(cmd.OutOrStdout(), path, costLimit)
		},
	}
	check.Flags().Uint64Var(&costLimit, "cost-limit", rules.DefaultCostLimit, "evaluation cost limit per condition (0 disables)")

	cmd.AddCommand(check)
	return cmd
}

func checkRules(w io.Writer, path string, costLimit uint64) error {
	engine, err := rules.Load(path, costLimit)
	if err != nil {
		return err
	}

	for _, cat := range engine.Categories() {
		fmt.Fprintf(w, "%s: %d rules\n", cat.Category, len(cat.Rules))
	}

	invalid := engine.Invalid()
	for _, e := range invalid {
		fmt.Fprintf(w, "INVALID %s/%s: %v\n", e.Category, e.Rule, e.Err)
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d of %d rules failed to compile", len(invalid), engine.RulesCount())
	}

	fmt.Fprintf(w, "ok: %d rules compiled\n", engine.RulesCount())
	return nil
}
