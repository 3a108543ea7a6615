package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightforgemedia/go-maxclient/pkg/client"
)

func inspectCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Connect, sync once and print the session summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			cli, err := client.New(cfg.URL, cfg.ClientOptions(logger.Logger)...)
			if err != nil {
				return err
			}
			defer cli.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := cli.Connect(ctx); err != nil {
				return err
			}
			if _, err := cli.Handshake(ctx); err != nil {
				return err
			}
			if err := cli.Sync(ctx); err != nil {
				return err
			}

			st := cli.Inspect()
			out := cmd.OutOrStdout()
			me := st.Me
			if me == "" {
				me = "N/A"
			}
			fmt.Fprintf(out, "State:      %s\n", st.State)
			fmt.Fprintf(out, "Device:     %s\n", st.DeviceID)
			fmt.Fprintf(out, "Me:         %s (%d)\n", me, st.MeID)
			fmt.Fprintf(out, "Dialogs:    %d\n", st.Dialogs)
			fmt.Fprintf(out, "Chats:      %d\n", st.Chats)
			fmt.Fprintf(out, "Channels:   %d\n", st.Channels)
			fmt.Fprintf(out, "Users:      %d\n", st.UsersCached)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time allowed to connect and sync")
	return cmd
}
