package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hanyuliu/simlearn/internal/evaluate"
	"github.com/hanyuliu/simlearn/internal/experiment"
	"github.com/hanyuliu/simlearn/internal/llm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full pipeline: assess, tutor, simulate, evaluate",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		provider, err := llm.NewProviderFromEnv(cmd.Context(), env.st)
		if err != nil {
			return fmt.Errorf("LLM provider not configured: %w", err)
		}

		runner := experiment.NewRunner(env.ds, provider, env.st, env.cfg)
		summary, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	},
}

func printSummary(s *experiment.Summary) {
	fmt.Printf("run %s: %d students (%d excluded)\n", s.RunID, s.Students, s.Excluded)
	if len(s.FailuresByStage) > 0 {
		stages := make([]string, 0, len(s.FailuresByStage))
		for stage := range s.FailuresByStage {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		for _, stage := range stages {
			fmt.Printf("  %s failures: %d\n", stage, s.FailuresByStage[stage])
		}
	}
	printReports(s.Reports)
	quartiles := make([]string, 0, len(s.ByQuartile))
	for mode := range s.ByQuartile {
		quartiles = append(quartiles, mode)
	}
	sort.Strings(quartiles)
	for _, mode := range quartiles {
		fmt.Printf("\n%s by training-accuracy quartile:\n", mode)
		printReports(s.ByQuartile[mode])
	}
}

func printReports(reports map[string]evaluate.Report) {
	keys := make([]string, 0, len(reports))
	for k := range reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := reports[k]
		fmt.Printf("  %-14s correctness acc %.3f (F1 %.3f, n=%d) | concept acc %.3f | answer acc %.3f (macro-F1 %.3f)\n",
			k,
			r.Task1Accuracy.Value, r.Task1F1.Value, r.Task1Accuracy.N,
			r.Task2Accuracy.Value,
			r.Task4Accuracy.Value, r.Task4MacroF1.Value)
	}
}
