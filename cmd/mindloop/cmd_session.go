package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/mindloop/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd, sessionRenameCmd, sessionDeleteCmd, sessionHistoryCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)

		list, err := client.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCREATED")
		for _, s := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\n",
				s.ID,
				sessionTitle(&s),
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)

		var title *string
		if len(args) == 1 {
			title = &args[0]
		}
		sess, err := client.CreateSession(context.Background(), title)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Printf("Session %d created.\n", sess.ID)
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session ID: %s", args[0])
		}
		if _, err := client.RenameSession(context.Background(), id, args[1]); err != nil {
			return fmt.Errorf("rename session: %w", err)
		}
		fmt.Printf("Session %d renamed.\n", id)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session ID: %s", args[0])
		}
		if err := client.DeleteSession(context.Background(), id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Printf("Session %d deleted.\n", id)
		return nil
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session ID: %s", args[0])
		}
		messages, err := client.SessionMessages(context.Background(), id)
		if err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}
		for _, msg := range messages {
			prefix := "you"
			if msg.Role == types.RoleAssistant {
				prefix = "bot"
			}
			fmt.Printf("%s: %s\n", prefix, msg.Content)
		}
		return nil
	},
}
