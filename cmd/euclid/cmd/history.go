package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var errNoServer = errors.New("no server configured: pass --server or set client.server_url")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent computations recorded by the server",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many computations the server has recorded",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of computations to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !remote() {
		return errNoServer
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	comps, err := c.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, comps); ok {
		return err
	}

	if len(comps) == 0 {
		fmt.Fprintln(out, "No computations recorded")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("ID", "N", "M", "GCD", "Source", "Created")
	for _, c := range comps {
		table.Append(
			c.ID,
			fmt.Sprint(c.N),
			fmt.Sprint(c.M),
			fmt.Sprint(c.Result),
			string(c.Source),
			c.CreatedAt.Format(time.RFC3339),
		)
	}
	return table.Render()
}

func runStats(cmd *cobra.Command, args []string) error {
	if !remote() {
		return errNoServer
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, stats); ok {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Total", "Coprime")
	table.Append(fmt.Sprint(stats.Total), fmt.Sprint(stats.Coprime))
	return table.Render()
}
