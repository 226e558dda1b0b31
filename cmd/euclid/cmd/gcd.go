package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/euclid/pkg/batch"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/numeric"
	"github.com/spf13/cobra"
)

var gcdCmd = &cobra.Command{
	Use:   "gcd <n> <m>",
	Short: "Compute the greatest common divisor of two positive integers",
	Long: `Compute gcd(n, m) with the Euclidean algorithm. Both operands must be
non-zero. With --server the computation runs on, and is recorded by, a euclid API server.`,
	Example: `  euclid gcd 14 15
  euclid gcd 2805 272745 -o json
  euclid gcd 6 9 --server http://localhost:8080`,
	Args: cobra.ExactArgs(2),
	RunE: runGCD,
}

func init() {
	rootCmd.AddCommand(gcdCmd)
}

func runGCD(cmd *cobra.Command, args []string) error {
	n, err := batch.ParseOperand(args[0])
	if err != nil {
		return err
	}
	m, err := batch.ParseOperand(args[1])
	if err != nil {
		return err
	}

	var comp *models.Computation
	if remote() {
		c, err := newClient()
		if err != nil {
			return err
		}
		comp, err = c.Compute(cmd.Context(), n, m)
		if err != nil {
			return err
		}
	} else {
		result, err := numeric.GCD(n, m)
		if err != nil {
			return err
		}
		comp = &models.Computation{N: n, M: m, Result: result, Source: models.SourceSingle, CreatedAt: time.Now()}
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, comp); ok {
		return err
	}

	table := tablewriter.NewWriter(out)
	if comp.ID != "" {
		table.Header("ID", "N", "M", "GCD")
		table.Append(comp.ID, fmt.Sprint(comp.N), fmt.Sprint(comp.M), fmt.Sprint(comp.Result))
	} else {
		table.Header("N", "M", "GCD")
		table.Append(fmt.Sprint(comp.N), fmt.Sprint(comp.M), fmt.Sprint(comp.Result))
	}
	return table.Render()
}
