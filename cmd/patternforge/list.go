package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patternforge/patternforge/internal/config"
	"github.com/patternforge/patternforge/pkg/server"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, sess, err := server.BuildEngine(config.Load())
		if err != nil {
			return err
		}
		defer sess.Shutdown()

		filter, _ := cmd.Flags().GetStringSlice("tag")
		patterns := eng.ListPatterns(filter)
		if len(patterns) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no patterns found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTAGS")
		for _, p := range patterns {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, strings.Join(p.Tags, ", "))
		}
		return w.Flush()
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tag definitions by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, sess, err := server.BuildEngine(config.Load())
		if err != nil {
			return err
		}
		defer sess.Shutdown()

		byCategory := eng.Tags().ByCategory()
		if len(byCategory) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no tags registered")
			return nil
		}
		for category, defs := range byCategory {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", category)
			for _, def := range defs {
				if def.Description != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\n", def.ID, def.Description)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", def.ID)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringSliceP("tag", "t", nil, "filter by tag id (repeatable, OR semantics)")
}
