package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"CopilotChat/internal/devserver"
)

func newServeDevCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run a local copilot backend for development",
		Long: `Run a local server speaking the copilot stream protocol.

With a Gemini API key (devserver.gemini_api_key or GEMINI_API_KEY) requests
are relayed to Gemini. Failing that, an OpenAI key (devserver.openai_api_key
or OPENAI_API_KEY) relays to an OpenAI-compatible API. Without either,
canned answers are streamed word by word.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			cfg := a.cfg.DevServer
			if addr != "" {
				cfg.Addr = addr
			}

			var responder devserver.Responder = devserver.CannedResponder{Delay: cfg.ChunkDelay}
			switch {
			case cfg.GeminiAPIKey != "":
				gemini, err := devserver.NewGeminiResponder(cmd.Context(), cfg.GeminiAPIKey)
				if err != nil {
					return err
				}
				responder = gemini
				a.logger.Info("relaying to Gemini")
			case cfg.OpenAIAPIKey != "":
				oai, err := devserver.NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
				if err != nil {
					return err
				}
				responder = oai
				a.logger.Info("relaying to OpenAI-compatible API", "base_url", cfg.OpenAIBaseURL, "model", cfg.OpenAIModel)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", a.cfg.Backend.StreamPath, cfg.Addr)
			return devserver.New(cfg, a.cfg.Backend.StreamPath, responder, a.logger).Run(cmd.Context())
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from devserver.addr)")
	return cmd
}
