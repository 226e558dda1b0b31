package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/euclid/pkg/batch"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/spf13/cobra"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Compute gcd for many pairs",
	Long: `Read one "n m" pair per line from a file, or from stdin when the file is
omitted or "-". Blank lines and lines starting with # are ignored. Pairs with a
zero operand are reported individually and do not stop the batch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "parallel workers for local batches (default from batch.workers)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	pairs, err := batch.ParsePairs(in)
	if err != nil {
		return err
	}

	resp, err := computeBatch(cmd, pairs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, resp); ok {
		if err == nil && resp.Failed > 0 {
			return fmt.Errorf("%d of %d pairs failed", resp.Failed, len(resp.Results))
		}
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("N", "M", "GCD", "Error")
	for _, item := range resp.Results {
		result := ""
		if item.Error == "" {
			result = fmt.Sprint(item.Result)
		}
		table.Append(fmt.Sprint(item.N), fmt.Sprint(item.M), result, item.Error)
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal pairs: %d, failed: %d\n", len(resp.Results), resp.Failed)
	if resp.Failed > 0 {
		return fmt.Errorf("%d of %d pairs failed", resp.Failed, len(resp.Results))
	}
	return nil
}

func computeBatch(cmd *cobra.Command, pairs []batch.Pair) (*models.BatchResponse, error) {
	if remote() {
		reqs := make([]models.ComputeRequest, len(pairs))
		for i, p := range pairs {
			reqs[i] = models.ComputeRequest{N: p.N, M: p.M}
		}
		c, err := newClient()
		if err != nil {
			return nil, err
		}
		return c.Batch(cmd.Context(), reqs)
	}

	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.Batch.Workers
	}

	outcomes, err := batch.Compute(cmd.Context(), pairs, workers)
	if err != nil {
		return nil, err
	}

	resp := &models.BatchResponse{
		Results: make([]models.BatchItem, len(outcomes)),
		Failed:  batch.Failed(outcomes),
	}
	for i, o := range outcomes {
		item := models.BatchItem{N: o.N, M: o.M, Result: o.Result}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		resp.Results[i] = item
	}
	return resp, nil
}
