package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/review"
)

var (
	reviewOrg   string
	reviewItem  string
	reviewMatch string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Decide pending facility matches",
}

var reviewConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm a pending match",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := review.New(st).Confirm(ctx, reviewOrg, reviewItem, reviewMatch); err != nil {
			return err
		}
		zap.L().Info("confirmed",
			zap.String("item_id", reviewItem),
			zap.String("match_id", reviewMatch),
		)
		return nil
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a pending match",
	Long:  "Rejects a pending match. When no pending matches remain afterwards, a new facility is created from the item's own fields and the item is bound to it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := review.New(st).Reject(ctx, reviewOrg, reviewItem, reviewMatch); err != nil {
			return err
		}
		zap.L().Info("rejected",
			zap.String("item_id", reviewItem),
			zap.String("match_id", reviewMatch),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{reviewConfirmCmd, reviewRejectCmd} {
		c.Flags().StringVar(&reviewOrg, "org", "", "acting organization ID (required)")
		c.Flags().StringVar(&reviewItem, "item", "", "item ID (required)")
		c.Flags().StringVar(&reviewMatch, "match", "", "match ID (required)")
		_ = c.MarkFlagRequired("org")
		_ = c.MarkFlagRequired("item")
		_ = c.MarkFlagRequired("match")
		reviewCmd.AddCommand(c)
	}
	rootCmd.AddCommand(reviewCmd)
}
