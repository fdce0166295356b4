package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/open-supply/facility-registry/internal/batch"
)

var (
	processAction   string
	processListID   string
	processRowIndex int
	processWorkers  int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a processing stage over a list",
	Long:  "Runs the parse, geocode, or match stage for every eligible item of a list. With --row-index only that row is processed; with --workers greater than one, rows are processed in parallel shards, each in its own transaction.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		geocoder, err := initGeocoder(st)
		if err != nil {
			return err
		}

		coord := batch.New(st, geocoder)

		workers := processWorkers
		if workers == 0 {
			workers = cfg.Batch.Workers
		}

		var result *batch.Result
		switch {
		case cmd.Flags().Changed("row-index"):
			result, err = coord.Run(ctx, processAction, processListID, &processRowIndex)
		case workers > 1:
			items, lerr := st.ListItems(ctx, processListID, nil)
			if lerr != nil {
				return lerr
			}
			indexes := make([]int, 0, len(items))
			for _, item := range items {
				indexes = append(indexes, item.RowIndex)
			}
			result, err = runShards(ctx, coord, processAction, processListID, indexes, workers)
		default:
			result, err = coord.Run(ctx, processAction, processListID, nil)
		}
		if err != nil {
			return err
		}

		cmd.Printf("success: %d\nfailure: %d\nskipped: %d\n", result.Success, result.Failure, result.Skipped)
		return nil
	},
}

// shardRunner is the slice of the coordinator the shard fan-out needs.
type shardRunner interface {
	Run(ctx context.Context, action, listID string, rowIndex *int) (*batch.Result, error)
}

// runShards processes each row index as its own single-row batch, at
// most workers at a time, and sums the tallies. A failed shard cancels
// the rest; shards already committed stay committed.
func runShards(ctx context.Context, r shardRunner, action, listID string, indexes []int, workers int) (*batch.Result, error) {
	var (
		mu    sync.Mutex
		total batch.Result
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, idx := range indexes {
		idx := idx
		g.Go(func() error {
			res, err := r.Run(ctx, action, listID, &idx)
			if err != nil {
				zap.L().Error("shard failed",
					zap.Int("row_index", idx),
					zap.Error(err),
				)
				return err
			}
			mu.Lock()
			total.Success += res.Success
			total.Failure += res.Failure
			total.Skipped += res.Skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &total, nil
}

func init() {
	processCmd.Flags().StringVar(&processAction, "action", "", "stage to run: parse, geocode, or match (required)")
	processCmd.Flags().StringVar(&processListID, "list-id", "", "list to process (required)")
	processCmd.Flags().IntVar(&processRowIndex, "row-index", 0, "process only this row")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "parallel shard count (defaults to batch.workers)")
	_ = processCmd.MarkFlagRequired("action")
	_ = processCmd.MarkFlagRequired("list-id")
	rootCmd.AddCommand(processCmd)
}
