package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

// modelsCmd lists the routing table
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List logical model names and where they route",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}
		return printModels(cmd.OutOrStdout(), registry)
	},
}

func printModels(w io.Writer, registry *decomposer.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROVIDER\tUPSTREAM MODEL")
	for _, e := range registry.Entries() {
		name := e.Name
		if name == decomposer.DefaultModel {
			name += " (default)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, e.Kind, e.ModelID)
	}
	return tw.Flush()
}
