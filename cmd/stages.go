package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hanyuliu/simlearn/internal/experiment"
	"github.com/hanyuliu/simlearn/internal/llm"
	"github.com/hanyuliu/simlearn/internal/split"
)

// stageRunner prepares a runner and splits for one stage invocation.
// Stage commands share a run ID through --run so their outputs land in
// the same run.
func stageRunner(cmd *cobra.Command, needsProvider bool) (*runEnv, *experiment.Runner, map[string]split.HistorySplit, error) {
	env, err := openEnv(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	var provider llm.Provider
	if needsProvider {
		provider, err = llm.NewProviderFromEnv(cmd.Context(), env.st)
		if err != nil {
			env.Close()
			return nil, nil, nil, fmt.Errorf("LLM provider not configured: %w", err)
		}
	}

	runner := experiment.NewRunner(env.ds, provider, env.st, env.cfg)
	splits, _, err := runner.Splits(cmd.Context())
	if err != nil {
		env.Close()
		return nil, nil, nil, err
	}
	return env, runner, splits, nil
}

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess per-concept mastery from each student's training history",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, runner, splits, err := stageRunner(cmd, true)
		if err != nil {
			return err
		}
		defer env.Close()
		return runner.Assess(cmd.Context(), splits)
	},
}

var tutorCmd = &cobra.Command{
	Use:   "tutor",
	Short: "Generate tutoring material for each student's weak concepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, runner, splits, err := stageRunner(cmd, true)
		if err != nil {
			return err
		}
		defer env.Close()
		return runner.Tutor(cmd.Context(), splits)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate held-out test items under each ablation mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, runner, splits, err := stageRunner(cmd, true)
		if err != nil {
			return err
		}
		defer env.Close()
		return runner.Simulate(cmd.Context(), splits)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the persisted simulations for this run",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, runner, splits, err := stageRunner(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		reports, byQuartile, err := runner.Evaluate(cmd.Context(), splits)
		if err != nil {
			return err
		}
		printReports(reports)
		modes := make([]string, 0, len(byQuartile))
		for mode := range byQuartile {
			modes = append(modes, mode)
		}
		sort.Strings(modes)
		for _, mode := range modes {
			fmt.Printf("\n%s by training-accuracy quartile:\n", mode)
			printReports(byQuartile[mode])
		}
		return nil
	},
}
