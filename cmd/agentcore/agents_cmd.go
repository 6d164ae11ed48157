package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the agent registry",
	}
	cmd.AddCommand(buildAgentsListCmd())
	return cmd
}

func buildAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every agent name the registry resolves (built-in and project-local)",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(agentsDir)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}

			names := eng.agents.List()
			defs := make([]map[string]any, 0, len(names))
			for _, name := range names {
				def, err := eng.agents.Resolve(name)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", name, err)
				}
				defs = append(defs, map[string]any{
					"name":        def.Name,
					"mode":        def.Mode,
					"description": def.Description,
					"tools":       eng.agents.ResolveToolSet(def),
					"built_in":    def.BuiltIn,
				})
			}
			return printJSON(defs)
		},
	}
}
