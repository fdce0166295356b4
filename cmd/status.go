package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/open-supply/facility-registry/internal/model"
)

var statusListID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show item status counts for a list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.GetList(ctx, statusListID)
		if err != nil {
			return err
		}
		counts, err := st.CountItemsByStatus(ctx, statusListID)
		if err != nil {
			return err
		}

		cmd.Printf("%s (%s)\n", list.Name, list.ID)

		statuses := make([]model.ItemStatus, 0, len(counts))
		total := 0
		for s, n := range counts {
			statuses = append(statuses, s)
			total += n
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, s := range statuses {
			cmd.Printf("  %-16s %d\n", s, counts[s])
		}
		cmd.Printf("  %-16s %d\n", "total", total)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusListID, "list-id", "", "list to summarize (required)")
	_ = statusCmd.MarkFlagRequired("list-id")
	rootCmd.AddCommand(statusCmd)
}
