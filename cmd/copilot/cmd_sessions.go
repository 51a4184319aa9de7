package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List archived chat sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			store, err := a.openArchive()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("archive is disabled")
			}

			list, err := store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived sessions.")
				return nil
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-16s %d messages\n",
					s.ID, s.StartTime.Local().Format(time.DateTime), s.Model, s.MessageCount)
			}
			return nil
		}),
	}
}
