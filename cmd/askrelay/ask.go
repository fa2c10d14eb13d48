package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"askrelay/internal/popup"

	"github.com/spf13/cobra"
)

func askCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask one question and stream the answer",
		Long:  "Sends the question to the configured provider and prints the answer as it arrives. Successful answers are saved to history.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(nil)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := newSession(ctx, cfg, remote)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			streamed := false
			answer, err := s.orch.Ask(ctx, strings.Join(args, " "), func(chunk string) {
				streamed = true
				fmt.Fprint(out, chunk)
			})
			if err != nil {
				if streamed {
					fmt.Fprintln(out)
				}
				return err
			}
			if !streamed {
				fmt.Fprint(out, answer)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "use the running gateway at gateway.url instead of an in-process one")
	return cmd
}

func popupCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "popup",
		Short: "Open the interactive terminal popup",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs would tear the alternate screen; send them to the log
			// file only.
			cfg, closeLog, err := setup(io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := newSession(ctx, cfg, remote)
			if err != nil {
				return err
			}
			defer s.Close()

			return popup.Run(ctx, popup.Config{
				Asker:   s.orch,
				History: s.history,
				Title:   "askrelay · " + cfg.Settings.Provider.Label(),
				Theme:   cfg.General.Theme,
				Logger:  logger,
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "use the running gateway at gateway.url instead of an in-process one")
	return cmd
}
