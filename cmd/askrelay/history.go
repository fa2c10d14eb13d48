package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"askrelay/internal/history"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and delete saved conversations",
	}

	withStore := func(fn func(cmd *cobra.Command, args []string, store *history.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(nil)
			if err != nil {
				return err
			}
			defer closeLog()
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return fn(cmd, args, store)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *history.Store) error {
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No conversations yet")
				return nil
			}
			now := time.Now()
			table := uitable.New()
			table.MaxColWidth = 60
			table.Separator = "  "
			table.AddRow("#", "QUESTION", "WHEN")
			for i, e := range entries {
				question := strings.Join(strings.Fields(e.Question), " ")
				table.AddRow(strconv.Itoa(i), history.Preview(question, 45), history.TimeAgo(e.Timestamp, now))
			}
			fmt.Println(table)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [index]",
		Short: "Print one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *history.Store) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			e, err := store.Get(cmd.Context(), idx)
			if err != nil {
				return fmt.Errorf("entry %d: %w", idx, err)
			}
			fmt.Printf("Q: %s\n\n%s\n", e.Question, e.Response)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [index]",
		Short: "Delete one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *history.Store) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), idx); err != nil {
				return fmt.Errorf("entry %d: %w", idx, err)
			}
			logger.Info("history entry deleted", "index", idx)
			return nil
		}),
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		RunE: withStore(func(cmd *cobra.Command, args []string, store *history.Store) error {
			if !yes {
				ok, err := confirm("Are you sure you want to delete all conversation history? This cannot be undone.")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			logger.Info("history cleared")
			return nil
		}),
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(clearCmd)

	return cmd
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return idx, nil
}
