package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/mindloop/internal/chatlog"
	"github.com/user/mindloop/internal/engine"
	"github.com/user/mindloop/internal/history"
	"github.com/user/mindloop/internal/report"
	"github.com/user/mindloop/internal/session"
	"github.com/user/mindloop/internal/types"
)

var chatSessionID int64

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Int64Var(&chatSessionID, "session", 0, "session ID to resume (default: most recent)")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with the assistant",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	client := newClient(cfg)
	store := session.NewStore(client)
	reporter := report.NewReporter()

	window, err := history.New(cfg.Model, cfg.History.MaxContextTokens, cfg.History.OutputReserve)
	if err != nil {
		slog.Warn("history trimming disabled", "error", err)
		window = nil
	}

	controller := engine.New(client, store, reporter, window)
	store.SetCanceller(controller.Cancel)

	ctx := context.Background()

	// First interrupt cancels the in-flight stream, second one exits.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		controller.Cancel()
		fmt.Fprintln(os.Stderr, "\n(stream cancelled, interrupt again to quit)")
		<-sigChan
		os.Exit(130)
	}()

	if err := store.Refresh(ctx); err != nil {
		return err
	}

	switch {
	case chatSessionID != 0:
		if err := store.Select(ctx, chatSessionID); err != nil {
			return err
		}
	case len(store.List()) > 0:
		if err := store.Select(ctx, store.List()[0].ID); err != nil {
			return err
		}
	default:
		if _, err := store.Create(ctx, nil); err != nil {
			return err
		}
	}

	selected, _ := store.Selected()
	fmt.Printf("Session %d. Type a message, /new [title], /switch <id>, /sessions or /quit.\n", selected)
	printLog(store.Log(selected))

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			// Nothing to send.
		case line == "/quit":
			controller.Cancel()
			return nil
		case line == "/sessions":
			for _, sess := range store.List() {
				fmt.Printf("  %d  %s\n", sess.ID, sessionTitle(&sess))
			}
		case strings.HasPrefix(line, "/new"):
			title := strings.TrimSpace(strings.TrimPrefix(line, "/new"))
			var titlePtr *string
			if title != "" {
				titlePtr = &title
			}
			created, err := store.Create(ctx, titlePtr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				break
			}
			fmt.Printf("Session %d.\n", created.ID)
		case strings.HasPrefix(line, "/switch "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/switch ")), 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "usage: /switch <session-id>")
				break
			}
			if err := store.Select(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				break
			}
			fmt.Printf("Session %d.\n", id)
			printLog(store.Log(id))
		default:
			sendAndWait(ctx, controller, reporter, store, line)
		}
		fmt.Print("> ")
	}
	controller.Cancel()
	return scanner.Err()
}

// sendAndWait runs one exchange, printing deltas as they arrive.
func sendAndWait(ctx context.Context, controller *engine.Controller, reporter *report.Reporter, store *session.Store, text string) {
	done := make(chan engine.State, 1)
	err := controller.Send(ctx, text,
		engine.WithOnDelta(func(delta string) { fmt.Print(delta) }),
		engine.WithOnDone(func(state engine.State) { done <- state }),
	)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	state := <-done
	fmt.Println()
	if state == engine.StateFailed {
		if id, ok := store.Selected(); ok {
			if latest := reporter.Latest(id); latest != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", latest)
			}
		}
	}
}

func printLog(log *chatlog.Log) {
	for _, msg := range log.Messages() {
		prefix := "you"
		if msg.Role == types.RoleAssistant {
			prefix = "bot"
		}
		fmt.Printf("%s: %s\n", prefix, msg.Content)
	}
}

func sessionTitle(sess *types.ChatSession) string {
	if sess.Title != nil && *sess.Title != "" {
		return *sess.Title
	}
	return "(untitled)"
}
