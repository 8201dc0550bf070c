package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the run's records to CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := env.cfg.Data.ExportDir
		if p, _ := cmd.Flags().GetString("out"); p != "" {
			dir = p
		}
		if err := env.st.ExportCSV(cmd.Context(), dir); err != nil {
			return err
		}
		fmt.Println("exported to", dir)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "Output directory (overrides config)")
}
