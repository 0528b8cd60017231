// Package main provides the rentroll command line tool, which runs the
// ingestion pipeline on a local file and prints the result as JSON.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rentroll",
		Short: "Extract unit and tenant data from rent roll spreadsheets",
		Long: `rentroll reads rent roll exports (CSV, TSV, semicolon separated text and
Excel workbooks), finds the rent roll sheets and their header rows, and
outputs the extracted units, tenants and summaries as JSON.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newProcessCmd())
	return rootCmd
}
