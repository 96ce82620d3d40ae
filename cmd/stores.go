package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sizewatch/internal/extractor"
	"github.com/JakeFAU/sizewatch/internal/monitor"
)

func newStoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List supported stores and their size-list selectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, store := range monitor.Stores() {
				sel := extractor.Profiles[store]
				if _, err := fmt.Fprintf(out, "%-10s %s\n", store, strings.Join(sel.Items, " | ")); err != nil {
					return fmt.Errorf("write store list: %w", err)
				}
			}
			return nil
		},
	}
}
