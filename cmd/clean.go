package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapipe-cli/internal/clean"
)

var (
	cleanLimit int
	cleanRules string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Refresh the clean record projection from raw records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "clean")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := cleanLimit
		if limit == 0 {
			limit = cfg.Clean.Limit
		}

		rules := clean.DefaultConfig()
		path := cleanRules
		if path == "" {
			path = cfg.Clean.RulesPath
		}
		if path != "" {
			rules, err = clean.LoadRules(path)
			if err != nil {
				return err
			}
		}

		total, err := clean.Refresh(ctx, st, limit, rules)
		if err != nil {
			return err
		}

		fmt.Printf("Clean records: %d total\n", total)
		return nil
	},
}

func init() {
	cleanCmd.Flags().IntVar(&cleanLimit, "limit", 0, "max raw records to clean (default from config)")
	cleanCmd.Flags().StringVar(&cleanRules, "rules", "", "path to a cleaning rules YAML file")
	rootCmd.AddCommand(cleanCmd)
}
