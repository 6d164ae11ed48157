package main

import (
	"github.com/spf13/cobra"

	"github.com/agentrun/core/internal/catalog"
)

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the provider catalogue (vendors, models, pricing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(map[string]any{
				"vendors": catalog.ListVendors(),
			})
		},
	}
}
