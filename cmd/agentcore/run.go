package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentrun/core/internal/orchestrator"
	"github.com/agentrun/core/pkg/models"
)

func buildRunCmd() *cobra.Command {
	var (
		agentName string
		prompt    string
		project   string
		user      string
		session   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single turn through the orchestration core against the scripted adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			ctx := context.Background()

			eng, err := buildEngine(agentsDir)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}

			sessionID := session
			if sessionID == "" {
				sess := &models.Session{ProjectID: project, Agent: agentName}
				if err := eng.store.Sessions().Create(ctx, sess); err != nil {
					return fmt.Errorf("create session: %w", err)
				}
				sessionID = sess.ID
				slog.Info("created session", "session_id", sessionID)
			}

			cred, err := eng.resolver.Resolve(ctx, user, stubVendor)
			if err != nil {
				return fmt.Errorf("resolve credential: %w", err)
			}

			result, err := eng.orch.Run(ctx, orchestrator.Request{
				ProjectID:  project,
				SessionID:  sessionID,
				UserID:     user,
				Utterance:  prompt,
				AgentName:  agentName,
				Credential: cred,
			})
			if err != nil {
				return fmt.Errorf("run turn: %w", err)
			}

			parts, err := eng.store.MessageParts().ListByMessage(ctx, result.AssistantMessageID)
			if err != nil {
				return fmt.Errorf("list message parts: %w", err)
			}

			return printJSON(map[string]any{
				"session_id": sessionID,
				"result":     result,
				"parts":      parts,
			})
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "default", "agent definition to run as")
	cmd.Flags().StringVar(&prompt, "prompt", "", "the user utterance to send (required)")
	cmd.Flags().StringVar(&project, "project", "local", "project id to scope the session under")
	cmd.Flags().StringVar(&user, "user", "local-user", "user id to resolve credentials for")
	cmd.Flags().StringVar(&session, "session", "", "existing session id to continue (new session if empty)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(cmdStdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
