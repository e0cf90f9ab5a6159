package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/selfcorrect/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run selfcorrect as an MCP (Model Context Protocol) server",
		Long: `Start an MCP server that exposes selfcorrect over stdio:

  • selfcorrect_learn    - Report an activity and get its diagnosis
  • selfcorrect_analyze  - Summarize learned patterns and corrections
  • selfcorrect_tasks    - List scheduled corrections

Example client configuration:

  {
    "mcpServers": {
      "selfcorrect": {
        "command": "selfcorrect",
        "args": ["mcp-server"],
        "cwd": "${workspaceFolder}"
      }
    }
  }
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "selfcorrect",
				Version: version,
				Root:    root,
				Logger:  logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			// Blocks until the client disconnects
			if err := server.Run(cmd.Context()); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
