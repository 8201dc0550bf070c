package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hanyuliu/simlearn/internal/config"
	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "simlearn",
	Short: "LLM student-simulation experiment pipeline",
	Long: "Simlearn replays held-out student interactions through an LLM that role-plays\n" +
		"each student, with and without injected memory of their mastery state and\n" +
		"freshly reviewed tutoring material, and scores how well the simulation\n" +
		"predicts the real outcomes.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("data", "", "Path to the dataset directory (overrides config)")
	rootCmd.PersistentFlags().String("db", "", "Path to the run database (overrides config)")
	rootCmd.PersistentFlags().String("run", "", "Run ID to create or resume (default: a fresh ID)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(tutorCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

// runEnv bundles what every subcommand needs: configuration, the loaded
// dataset, and the run store.
type runEnv struct {
	cfg *config.Config
	ds  *dataset.Dataset
	st  *store.Store
}

func (e *runEnv) Close() error {
	return e.st.Close()
}

// openEnv loads configuration, applies flag overrides, configures
// logging, and opens the dataset and store. A fresh run ID is minted
// unless --run names one to resume.
func openEnv(cmd *cobra.Command) (*runEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("data"); p != "" {
		cfg.Data.Dir = p
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Data.StorePath = p
	}
	configureLogging(cfg)

	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		runID = store.NewRunID()
	}

	ds, err := dataset.LoadDir(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	st, err := store.Open(cfg.Data.StorePath, runID)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fmt.Println("run ID:", runID)
	return &runEnv{cfg: cfg, ds: ds, st: st}, nil
}

func configureLogging(cfg *config.Config) {
	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if cfg.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
