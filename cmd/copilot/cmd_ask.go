package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"CopilotChat/internal/chatbot"
	"CopilotChat/internal/copilot"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var system string
	var raw bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the copilot a one-shot question",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			if system == "" {
				system = a.cfg.Backend.SystemPrompt
			}
			// One process per answer, so there is nothing to cache
			q := copilot.NewQuerier(a.copilotOptions(), nil)

			answer, err := q.Ask(cmd.Context(), strings.Join(args, " "), system)
			if err != nil {
				a.logger.Error("ask failed", "error", err)
				return errors.New(copilot.UserMessage(err))
			}
			printAnswer(cmd, answer, raw)
			return nil
		}),
	}

	cmd.Flags().StringVar(&system, "system", "", "Override the system prompt")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the answer without markdown rendering")
	return cmd
}

func newOptimizeCmd(opts *rootOptions) *cobra.Command {
	var schema string
	var raw bool

	cmd := &cobra.Command{
		Use:   "optimize <sql|->",
		Short: "Get optimization advice for an SQL query",
		Long: `Ask the copilot to review an SQL query and suggest indexes, rewrites
and fixes for bottlenecks. Pass "-" to read the query from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			query := strings.Join(args, " ")
			if query == "-" {
				var err error
				if query, err = readAllInput(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			q := copilot.NewQuerier(a.copilotOptions(), nil)
			answer, err := q.Optimize(cmd.Context(), query, schema)
			if err != nil {
				a.logger.Error("optimize failed", "error", err)
				return errors.New(copilot.UserMessage(err))
			}
			printAnswer(cmd, answer, raw)
			return nil
		}),
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Schema context, e.g. table definitions")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the answer without markdown rendering")
	return cmd
}

func printAnswer(cmd *cobra.Command, answer string, raw bool) {
	if !raw {
		answer = chatbot.RenderMarkdown(answer)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
}
