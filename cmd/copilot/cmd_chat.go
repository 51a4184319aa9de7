package main

import (
	"github.com/spf13/cobra"

	"CopilotChat/internal/chatbot"
	"CopilotChat/internal/notify"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive copilot chat",
		Long: `Start an interactive chat with the copilot. Answers stream in as they
are generated. Transcripts are archived after every exchange; pass
--session-id to continue an archived one.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			a.cfg.SessionID = sessionID

			store, err := a.openArchive()
			if err != nil {
				return err
			}

			bot, err := chatbot.NewChatBot(*a.cfg, chatbot.Options{
				Logger:   a.logger,
				Tracer:   a.tracer,
				Meter:    a.meter,
				Archive:  store,
				Tokens:   a.tokens,
				Notifier: notify.NewConsole(cmd.ErrOrStderr()),
				In:       cmd.InOrStdin(),
				Out:      cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			return bot.Run(cmd.Context())
		}),
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Resume an archived session by ID")
	return cmd
}
